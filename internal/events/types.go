package events

import (
	"time"

	"github.com/rickgao/notifystream/internal/model"
)

// EventType represents the type of event.
type EventType string

const (
	// Inbound push events
	NotificationReceived EventType = "notification.received"
	UserUpdated          EventType = "user.updated"

	// Session events
	TokenRefreshed EventType = "session.token_refreshed"
	SessionExpired EventType = "session.expired"

	// Connectivity
	StatusChanged EventType = "connection.status_changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NotificationEvent carries a newly pushed notification.
type NotificationEvent struct {
	BaseEvent
	Channel      string             `json:"channel"`
	Notification model.Notification `json:"notification"`
}

// NewNotificationEvent builds a NotificationReceived event.
func NewNotificationEvent(channel string, n model.Notification, at time.Time) NotificationEvent {
	return NotificationEvent{
		BaseEvent:    BaseEvent{EventType: NotificationReceived, EventTime: at},
		Channel:      channel,
		Notification: n,
	}
}

// UserEvent carries a full replacement of the user record.
type UserEvent struct {
	BaseEvent
	Channel string           `json:"channel"`
	User    model.UserRecord `json:"user"`
}

// NewUserEvent builds a UserUpdated event.
func NewUserEvent(channel string, u model.UserRecord, at time.Time) UserEvent {
	return UserEvent{
		BaseEvent: BaseEvent{EventType: UserUpdated, EventTime: at},
		Channel:   channel,
		User:      u,
	}
}

// TokenEvent is emitted after a cached token was refreshed and written back
// to session storage, so the auth layer can update its own cached state.
type TokenEvent struct {
	BaseEvent
	Mode      string    `json:"mode"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenEvent builds a TokenRefreshed event.
func NewTokenEvent(mode string, expiresAt, at time.Time) TokenEvent {
	return TokenEvent{
		BaseEvent: BaseEvent{EventType: TokenRefreshed, EventTime: at},
		Mode:      mode,
		ExpiresAt: expiresAt,
	}
}

// ExpiredEvent is emitted when the session can no longer be refreshed.
type ExpiredEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// NewExpiredEvent builds a SessionExpired event.
func NewExpiredEvent(reason string, at time.Time) ExpiredEvent {
	return ExpiredEvent{
		BaseEvent: BaseEvent{EventType: SessionExpired, EventTime: at},
		Reason:    reason,
	}
}

// StatusEvent mirrors the derived connection status.
type StatusEvent struct {
	BaseEvent
	Connected    bool `json:"connected"`
	Connecting   bool `json:"connecting"`
	Initializing bool `json:"initializing"`
}

// NewStatusEvent builds a StatusChanged event.
func NewStatusEvent(connected, connecting, initializing bool, at time.Time) StatusEvent {
	return StatusEvent{
		BaseEvent:    BaseEvent{EventType: StatusChanged, EventTime: at},
		Connected:    connected,
		Connecting:   connecting,
		Initializing: initializing,
	}
}
