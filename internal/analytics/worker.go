// Package analytics implements the queue consumer that folds click events
// into the per-offer daily aggregates. It batches deliveries (size or
// timer, whichever first) so bursts of clicks become one upsert per offer
// per flush.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/recorder"
	"github.com/dmarins/hermes/internal/store"
)

// Config holds the batching parameters of the worker.
type Config struct {
	// BatchSize flushes when this many events are buffered.
	BatchSize int
	// FlushInterval flushes a partial batch after this long.
	FlushInterval time.Duration
}

// StatsWriter is the slice of the click repository the worker needs.
type StatsWriter interface {
	UpsertClickStats(ctx context.Context, offerID int64, day time.Time, delta int64) error
}

// Worker consumes click events and writes daily aggregates.
type Worker struct {
	logger *slog.Logger
	config Config
	stats  StatsWriter
}

// New creates a Worker.
func New(logger *slog.Logger, cfg Config, stats StatsWriter) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		panic("analytics: stats writer cannot be nil")
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	return &Worker{
		logger: logger,
		config: cfg,
		stats:  stats,
	}
}

// Run consumes deliveries until the context is cancelled or the channel
// closes. Malformed messages are rejected without requeue; batches that
// fail to persist are nacked back onto the queue.
func (w *Worker) Run(ctx context.Context, msgs <-chan amqp091.Delivery) error {
	w.logger.Info("starting analytics worker",
		slog.Int("batch_size", w.config.BatchSize),
		slog.String("flush_interval", w.config.FlushInterval.String()),
	)

	var (
		events     []recorder.QueuedClick
		deliveries []amqp091.Delivery
	)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Unacked deliveries return to the queue when the channel
			// closes; no flush on the way out.
			w.logger.Info("analytics worker stopping...")
			return nil

		case d, ok := <-msgs:
			if !ok {
				w.flush(ctx, events, deliveries)
				return nil
			}

			var ev recorder.QueuedClick
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				w.logger.Error("rejecting undecodable message", slog.String("error", err.Error()))
				_ = d.Reject(false)
				continue
			}
			observability.AnalyticsEventsTotal.Inc()

			events = append(events, ev)
			deliveries = append(deliveries, d)

			if len(events) >= w.config.BatchSize {
				w.flush(ctx, events, deliveries)
				events, deliveries = nil, nil
				ticker.Reset(w.config.FlushInterval)
			}

		case <-ticker.C:
			if len(events) > 0 {
				w.flush(ctx, events, deliveries)
				events, deliveries = nil, nil
			}
		}
	}
}

// key aggregates clicks per offer per UTC day within one batch.
type key struct {
	offerID int64
	day     time.Time
}

// flush folds the batch into per-(offer, day) deltas and upserts them.
// All deliveries are acked only when every upsert succeeded; otherwise the
// whole batch is nacked for redelivery.
func (w *Worker) flush(ctx context.Context, events []recorder.QueuedClick, deliveries []amqp091.Delivery) {
	if len(events) == 0 {
		return
	}

	counts := make(map[key]int64)
	for _, ev := range events {
		if ev.OfferID == nil {
			// Overrides and creatives have no offer aggregate.
			continue
		}
		day := ev.ClickedAt.UTC().Truncate(24 * time.Hour)
		counts[key{*ev.OfferID, day}]++
	}

	for k, delta := range counts {
		if err := w.stats.UpsertClickStats(ctx, k.offerID, k.day, delta); err != nil {
			w.logger.Error("failed to upsert click stats, nacking batch",
				slog.Int64("offer_id", k.offerID),
				slog.String("error", err.Error()),
			)
			observability.AnalyticsBatchesTotal.WithLabelValues("fail").Inc()
			nackAll(deliveries)
			return
		}
	}

	observability.AnalyticsBatchesTotal.WithLabelValues("success").Inc()
	ackAll(deliveries)

	w.logger.Info("processed click batch",
		slog.Int("events", len(events)),
		slog.Int("aggregates", len(counts)),
	)
}

func ackAll(deliveries []amqp091.Delivery) {
	for _, d := range deliveries {
		_ = d.Ack(false)
	}
}

func nackAll(deliveries []amqp091.Delivery) {
	for _, d := range deliveries {
		_ = d.Nack(false, true)
	}
}

// interface check against the concrete store
var _ StatsWriter = (*store.PostgresStore)(nil)
