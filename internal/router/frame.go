package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/notifystream/internal/model"
)

// ErrMalformedFrame is returned when a frame is not valid JSON or a known
// frame type is missing required fields.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame type discriminators.
const (
	TypeNotification = "notification"
	TypeUserUpdate   = "user_update"
)

// Frame is the decoded form of one inbound message. It is one of
// NotificationFrame, UserUpdateFrame or UnknownFrame.
type Frame interface {
	frameType() string
}

// NotificationFrame carries a new notification.
type NotificationFrame struct {
	Notification model.Notification
}

// UserUpdateFrame carries a full replacement of the user record.
type UserUpdateFrame struct {
	User model.UserRecord
}

// UnknownFrame is any frame whose type is not recognised. It is ignored.
type UnknownFrame struct {
	Type string
}

func (NotificationFrame) frameType() string { return TypeNotification }
func (UserUpdateFrame) frameType() string   { return TypeUserUpdate }
func (f UnknownFrame) frameType() string    { return f.Type }

// Wire formats.
type envelope struct {
	Type string `json:"type"`
}

type notificationWire struct {
	ID        *int64     `json:"id"`
	Message   string     `json:"message"`
	Link      *string    `json:"link"`
	CreatedAt *time.Time `json:"created_at"`
}

type userUpdateWire struct {
	Data json.RawMessage `json:"data"`
}

// DecodeFrame parses a raw frame. A notification without an id and a
// user_update without data are malformed. A notification without
// created_at is stamped with receivedAt.
func DecodeFrame(data []byte, receivedAt time.Time) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypeNotification:
		var wire notificationWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: notification: %w", ErrMalformedFrame, err)
		}
		if wire.ID == nil {
			return nil, fmt.Errorf("%w: notification without id", ErrMalformedFrame)
		}
		n := model.Notification{
			ID:        *wire.ID,
			Message:   wire.Message,
			Link:      wire.Link,
			CreatedAt: receivedAt,
		}
		if wire.CreatedAt != nil {
			n.CreatedAt = *wire.CreatedAt
		}
		return NotificationFrame{Notification: n}, nil

	case TypeUserUpdate:
		var wire userUpdateWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: user_update: %w", ErrMalformedFrame, err)
		}
		u := model.UserRecord{Data: wire.Data}
		if u.Empty() {
			return nil, fmt.Errorf("%w: user_update without data", ErrMalformedFrame)
		}
		return UserUpdateFrame{User: u}, nil

	default:
		return UnknownFrame{Type: env.Type}, nil
	}
}
