// Package relay moves committed outbox events to Kafka.
//
// The worker drains the outbox whenever it is woken (by NOTIFY) or its poll
// interval elapses. Rows are retired only after the publisher acknowledges
// them, so delivery is at-least-once.
package relay

import (
	"context"
	"log/slog"
	"time"

	"timevault/internal/capsule/events"
	"timevault/internal/capsule/metrics"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 5 * time.Second
)

// Source hands batches of unpublished events to publish and retires them
// when publish returns nil.
type Source interface {
	Drain(ctx context.Context, limit int, publish func(ctx context.Context, entries []events.OutboxEntry) error) (int, error)
}

// Publisher delivers a batch in order or fails as a whole.
type Publisher interface {
	Publish(ctx context.Context, entries []events.OutboxEntry) error
}

type Worker struct {
	source       Source
	publisher    Publisher
	wake         chan struct{}
	batchSize    int
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func New(source Source, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		source:       source,
		publisher:    publisher,
		wake:         make(chan struct{}, 1),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify schedules a drain. It never blocks; wake-ups coalesce.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains until ctx is cancelled. It returns nil on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "outbox relay started",
		"batch_size", w.batchSize,
		"poll_interval", w.pollInterval.String(),
	)
	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.logger.InfoContext(context.WithoutCancel(ctx), "outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// drain keeps pulling full batches until the outbox runs dry or a batch fails.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.source.Drain(ctx, w.batchSize, w.publisher.Publish)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.metrics.IncRelayFailures()
			w.logger.WarnContext(ctx, "outbox drain failed, rows stay pending", "error", err)
			return
		}
		if n > 0 {
			w.metrics.AddRelayPublished(n)
			w.logger.DebugContext(ctx, "outbox batch published", "count", n)
		}
		if n < w.batchSize {
			return
		}
	}
}
