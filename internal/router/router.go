package router

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/connection"
	"github.com/rickgao/notifystream/internal/events"
)

// Stats contains runtime counters.
type Stats struct {
	Received      int64 `json:"received"`
	Routed        int64 `json:"routed"`
	ParseErrors   int64 `json:"parse_errors"`
	Ignored       int64 `json:"ignored"`
	PublishErrors int64 `json:"publish_errors"`
	ChimeErrors   int64 `json:"chime_errors"`
}

// Router turns inbound frames into events. It is safe for concurrent use
// by both channel supervisors.
type Router struct {
	publisher events.Publisher
	prefs     Preferences
	chime     Chime
	now       func() time.Time
	logger    *zap.Logger

	received      atomic.Int64
	routed        atomic.Int64
	parseErrors   atomic.Int64
	ignored       atomic.Int64
	publishErrors atomic.Int64
	chimeErrors   atomic.Int64
}

// Option configures a Router.
type Option func(*Router)

// WithPreferences sets where the sound preference is read from.
// Without it the cue is always requested.
func WithPreferences(p Preferences) Option {
	return func(r *Router) { r.prefs = p }
}

// WithChime sets the audio cue. Without it no cue is played.
func WithChime(c Chime) Option {
	return func(r *Router) { r.chime = c }
}

// WithNow overrides the clock used to stamp events from Route.
func WithNow(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Router publishing to p. A nil publisher routes without
// publishing, which is what Route callers that only want the event use.
func New(p events.Publisher, opts ...Option) *Router {
	r := &Router{
		publisher: p,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("router")
	return r
}

// HandleFrame routes one frame and publishes the resulting event.
// It never blocks on subscribers.
func (r *Router) HandleFrame(channel connection.ChannelID, msg connection.TimestampedMessage) {
	r.received.Add(1)

	ev, ok := r.route(channel, msg.Data, msg.ReceivedAt)
	if !ok {
		return
	}
	r.routed.Add(1)

	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ev); err != nil {
		r.publishErrors.Add(1)
		r.logger.Warn("failed to publish event",
			zap.String("channel", channel.String()),
			zap.String("event_type", string(ev.Type())),
			zap.Error(err),
		)
	}
}

// Route decodes a frame received on channel and returns the event it maps
// to. It reports false for malformed frames, unknown types and frames sent
// on the wrong channel.
func (r *Router) Route(channel connection.ChannelID, data []byte) (events.Event, bool) {
	return r.route(channel, data, r.now())
}

func (r *Router) route(channel connection.ChannelID, data []byte, at time.Time) (events.Event, bool) {
	frame, err := DecodeFrame(data, at)
	if err != nil {
		r.parseErrors.Add(1)
		r.logger.Debug("dropping malformed frame",
			zap.String("channel", channel.String()),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		return nil, false
	}

	switch f := frame.(type) {
	case NotificationFrame:
		if channel != connection.ChannelNotifications {
			break
		}
		r.cue()
		return events.NewNotificationEvent(channel.String(), f.Notification, at), true

	case UserUpdateFrame:
		if channel != connection.ChannelUserUpdates {
			break
		}
		return events.NewUserEvent(channel.String(), f.User, at), true
	}

	r.ignored.Add(1)
	r.logger.Debug("ignoring frame",
		zap.String("channel", channel.String()),
		zap.String("type", frame.frameType()),
	)
	return nil, false
}

// cue requests the audio cue without waiting for it.
func (r *Router) cue() {
	if r.chime == nil {
		return
	}
	if r.prefs != nil && !r.prefs.SoundEnabled() {
		return
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.chimeErrors.Add(1)
				r.logger.Warn("chime panicked", zap.Any("panic", p))
			}
		}()
		if err := r.chime.Play(); err != nil {
			r.chimeErrors.Add(1)
			r.logger.Debug("chime failed", zap.Error(err))
		}
	}()
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	return Stats{
		Received:      r.received.Load(),
		Routed:        r.routed.Load(),
		ParseErrors:   r.parseErrors.Load(),
		Ignored:       r.ignored.Load(),
		PublishErrors: r.publishErrors.Load(),
		ChimeErrors:   r.chimeErrors.Load(),
	}
}

