// Package events provides the in-process publish/subscribe bus that connects
// the connection supervisor to the rest of the application.
//
// The bus is created and owned by the composition root. Nothing in this
// package is global: producers receive the bus (or a narrower Publisher)
// explicitly, and its lifetime is bounded by Start and Shutdown.
package events
