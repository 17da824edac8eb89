package writer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/events"
)

const insertNotification = `
	INSERT INTO notifications (id, message, link, created_at, received_at, session_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
`

// batchSender is the part of *pgxpool.Pool the writer uses.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type notificationRow struct {
	ID         int64
	Message    string
	Link       *string
	CreatedAt  time.Time
	ReceivedAt time.Time
	SessionID  string
}

// NotificationWriter consumes NotificationReceived events from the bus and
// writes them to the notifications table in batches.
type NotificationWriter struct {
	cfg       Config
	db        batchSender
	sessionID func() string
	logger    *zap.Logger

	input chan notificationRow

	batch   []notificationRow
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

var _ events.Handler = (*NotificationWriter)(nil)

// NewNotificationWriter creates a writer. sessionID may be nil.
func NewNotificationWriter(cfg Config, db batchSender, sessionID func() string, logger *zap.Logger) *NotificationWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionID == nil {
		sessionID = func() string { return "" }
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushAttempts < 1 {
		cfg.FlushAttempts = 1
	}
	return &NotificationWriter{
		cfg:       cfg,
		db:        db,
		sessionID: sessionID,
		logger:    logger.Named("writer"),
		input:     make(chan notificationRow, cfg.BufferSize),
		batch:     make([]notificationRow, 0, cfg.BatchSize),
	}
}

// Handle queues a notification for archiving. It never blocks; when the
// queue is full the notification is dropped.
func (w *NotificationWriter) Handle(_ context.Context, ev events.Event) error {
	ne, ok := ev.(events.NotificationEvent)
	if !ok {
		return nil
	}

	row := w.transform(ne)
	select {
	case w.input <- row:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("archive queue full, dropping notification", zap.Int64("id", row.ID))
	}
	return nil
}

// Start begins consuming queued notifications.
func (w *NotificationWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("notification writer started",
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Duration("flush_interval", w.cfg.FlushInterval),
	)
	return nil
}

// Stop drains the queue and writes the final batch using ctx.
func (w *NotificationWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping notification writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("notification writer stop timed out")
		return ctx.Err()
	}

drain:
	for {
		select {
		case row := <-w.input:
			w.append(row)
		default:
			break drain
		}
	}
	w.flush(ctx)

	w.logger.Info("notification writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *NotificationWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *NotificationWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case row := <-w.input:
			if w.append(row) {
				w.flush(context.WithoutCancel(w.ctx))
			}
		}
	}
}

func (w *NotificationWriter) flushLoop() {
	defer w.wg.Done()

	if w.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(context.WithoutCancel(w.ctx))
		}
	}
}

// append adds a row and reports whether the batch is full.
func (w *NotificationWriter) append(row notificationRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func (w *NotificationWriter) transform(ev events.NotificationEvent) notificationRow {
	n := ev.Notification
	return notificationRow{
		ID:         n.ID,
		Message:    n.Message,
		Link:       n.Link,
		CreatedAt:  n.CreatedAt,
		ReceivedAt: ev.Timestamp(),
		SessionID:  w.sessionID(),
	}
}

// flush writes the current batch, retrying transient failures. A batch
// that still fails is dropped and counted.
func (w *NotificationWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]notificationRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	if w.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.FlushTimeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryInterval

	conflicts, err := backoff.Retry(ctx, func() (int, error) {
		return w.batchInsert(ctx, batch)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(w.cfg.FlushAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			w.batchMu.Lock()
			w.metrics.Retries++
			w.batchMu.Unlock()
			w.logger.Warn("batch insert failed, retrying",
				zap.Error(err),
				zap.Int("count", len(batch)),
				zap.Duration("delay", d),
			)
		}),
	)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if err != nil {
		w.metrics.Errors++
		w.metrics.Dropped += int64(len(batch))
		w.logger.Error("batch insert failed", zap.Error(err), zap.Int("count", len(batch)))
		return
	}

	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++

	w.logger.Debug("flushed notifications",
		zap.Int("count", len(batch)),
		zap.Int("conflicts", conflicts),
		zap.Duration("duration", time.Since(start)),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *NotificationWriter) batchInsert(ctx context.Context, rows []notificationRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertNotification, r.ID, r.Message, r.Link, r.CreatedAt, r.ReceivedAt, r.SessionID)
	}

	results := w.db.SendBatch(ctx, batch)
	defer func() {
		if cerr := results.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
