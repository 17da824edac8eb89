// Package database manages the optional PostgreSQL pool backing the
// notification archive.
package database
