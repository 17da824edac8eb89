package model

import (
	"encoding/json"
	"time"
)

// Notification is a single user-facing notification pushed on the notifications channel.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Link      *string   `json:"link,omitempty"` // nil when the backend sent null
	CreatedAt time.Time `json:"created_at"`
}

// HasLink reports whether the notification points somewhere.
func (n Notification) HasLink() bool {
	return n.Link != nil && *n.Link != ""
}

// UserRecord is the full user object pushed on the user-updates channel.
// It replaces whatever copy the application currently holds.
type UserRecord struct {
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the raw user object into v.
func (u UserRecord) Decode(v any) error {
	return json.Unmarshal(u.Data, v)
}

// Empty reports whether the record carries no payload.
func (u UserRecord) Empty() bool {
	return len(u.Data) == 0 || string(u.Data) == "null"
}
