package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/events"
)

// DefaultPublishTimeout bounds one publish.
const DefaultPublishTimeout = 5 * time.Second

// FanoutEvents are the event types forwarded to the exchange.
var FanoutEvents = []events.EventType{
	events.NotificationReceived,
	events.UserUpdated,
	events.StatusChanged,
	events.TokenRefreshed,
}

// channel is the part of *amqp.Channel the fanout uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Stats contains publish counters.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Fanout publishes events as JSON to a fanout exchange. The routing key is
// the event type.
type Fanout struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger

	published atomic.Int64
	failed    atomic.Int64
}

var _ events.Handler = (*Fanout)(nil)

// Dial connects to the broker and declares a durable fanout exchange.
func Dial(url, exchange string, logger *zap.Logger) (*Fanout, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	f := newFanout(ch, exchange, logger)
	f.conn = conn
	f.logger.Info("amqp fanout ready", zap.String("exchange", exchange))
	return f, nil
}

func newFanout(ch channel, exchange string, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		ch:       ch,
		exchange: exchange,
		timeout:  DefaultPublishTimeout,
		logger:   logger.Named("fanout"),
	}
}

// Handle publishes one event. Failures are logged and returned to the bus.
func (f *Fanout) Handle(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		f.failed.Add(1)
		return fmt.Errorf("encode %s: %w", ev.Type(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err = f.ch.PublishWithContext(ctx,
		f.exchange,
		string(ev.Type()),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   uuid.NewString(),
			Type:        string(ev.Type()),
			Timestamp:   ev.Timestamp(),
			Body:        body,
		})
	if err != nil {
		f.failed.Add(1)
		f.logger.Warn("publish failed", zap.String("event_type", string(ev.Type())), zap.Error(err))
		return fmt.Errorf("publish %s: %w", ev.Type(), err)
	}

	f.published.Add(1)
	return nil
}

// Subscribe registers the fanout for every forwarded event type.
func (f *Fanout) Subscribe(bus *events.Bus) []events.Subscription {
	subs := make([]events.Subscription, 0, len(FanoutEvents))
	for _, typ := range FanoutEvents {
		subs = append(subs, bus.Subscribe(typ, f))
	}
	return subs
}

// Stats returns publish counters.
func (f *Fanout) Stats() Stats {
	return Stats{Published: f.published.Load(), Failed: f.failed.Load()}
}

// Close closes the channel and the connection.
func (f *Fanout) Close() error {
	err := f.ch.Close()
	if f.conn != nil {
		if cerr := f.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
