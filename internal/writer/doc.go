// Package writer archives routed notifications to PostgreSQL.
//
// The archive is append-only. Frames are delivered at least once, so
// inserts use ON CONFLICT DO NOTHING on the notification id and duplicates
// are counted as conflicts.
package writer
