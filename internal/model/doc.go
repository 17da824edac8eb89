// Package model defines the records carried by the push channels.
//
// Conventions:
//   - Notification ids are the backend's integer primary keys.
//   - Timestamps are time.Time in UTC.
//   - The user record is opaque: it is replaced wholesale, never merged.
package model
