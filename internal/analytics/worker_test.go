package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarins/hermes/internal/recorder"
	"github.com/dmarins/hermes/internal/testsupport"
)

type upsertCall struct {
	offerID int64
	day     time.Time
	delta   int64
}

type fakeStatsWriter struct {
	mu    sync.Mutex
	calls []upsertCall
	err   error
}

func (f *fakeStatsWriter) UpsertClickStats(_ context.Context, offerID int64, day time.Time, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, upsertCall{offerID, day, delta})
	return nil
}

// fakeAcknowledger records the ack outcome per delivery tag.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	rejected []uint64
	requeue  map[uint64]bool
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{requeue: make(map[uint64]bool)}
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, tag)
	f.requeue[tag] = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, tag)
	f.requeue[tag] = requeue
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 { return &v }

func delivery(t *testing.T, ack *fakeAcknowledger, tag uint64, ev recorder.QueuedClick) amqp091.Delivery {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func TestWorker_Flush(t *testing.T) {
	ctx := context.Background()
	clickedAt := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC)

	t.Run("Should aggregate clicks per offer per day and ack the batch", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{}, stats)
		ack := newFakeAcknowledger()

		events := []recorder.QueuedClick{
			{ClickID: "c1", OfferID: int64Ptr(100), ClickedAt: clickedAt},
			{ClickID: "c2", OfferID: int64Ptr(100), ClickedAt: clickedAt.Add(time.Hour)},
			{ClickID: "c3", OfferID: int64Ptr(200), ClickedAt: clickedAt},
			{ClickID: "c4", OfferID: int64Ptr(100), ClickedAt: clickedAt.Add(24 * time.Hour)},
		}
		deliveries := make([]amqp091.Delivery, len(events))
		for i, ev := range events {
			deliveries[i] = delivery(t, ack, uint64(i+1), ev)
		}

		testsupport.AssertMetricDelta(t, "hermes_analytics_batches_total", map[string]string{"status": "success"}, 1, func() {
			w.flush(ctx, events, deliveries)
		})

		require.Len(t, stats.calls, 3)
		byKey := make(map[upsertCall]bool, len(stats.calls))
		for _, c := range stats.calls {
			byKey[c] = true
		}
		day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
		assert.True(t, byKey[upsertCall{100, day, 2}])
		assert.True(t, byKey[upsertCall{200, day, 1}])
		assert.True(t, byKey[upsertCall{100, day.Add(24 * time.Hour), 1}])

		assert.ElementsMatch(t, []uint64{1, 2, 3, 4}, ack.acked)
		assert.Empty(t, ack.nacked)
	})

	t.Run("Should ack but not upsert events without an offer", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{}, stats)
		ack := newFakeAcknowledger()

		events := []recorder.QueuedClick{
			{ClickID: "c1", ClickedAt: clickedAt},
		}
		deliveries := []amqp091.Delivery{delivery(t, ack, 1, events[0])}

		w.flush(ctx, events, deliveries)

		assert.Empty(t, stats.calls)
		assert.Equal(t, []uint64{1}, ack.acked)
	})

	t.Run("Should nack the whole batch back onto the queue when the upsert fails", func(t *testing.T) {
		stats := &fakeStatsWriter{err: errors.New("deadlock detected")}
		w := New(testLogger(), Config{}, stats)
		ack := newFakeAcknowledger()

		events := []recorder.QueuedClick{
			{ClickID: "c1", OfferID: int64Ptr(100), ClickedAt: clickedAt},
			{ClickID: "c2", OfferID: int64Ptr(200), ClickedAt: clickedAt},
		}
		deliveries := []amqp091.Delivery{
			delivery(t, ack, 1, events[0]),
			delivery(t, ack, 2, events[1]),
		}

		testsupport.AssertMetricDelta(t, "hermes_analytics_batches_total", map[string]string{"status": "fail"}, 1, func() {
			w.flush(ctx, events, deliveries)
		})

		assert.Empty(t, ack.acked)
		assert.ElementsMatch(t, []uint64{1, 2}, ack.nacked)
		assert.True(t, ack.requeue[1])
		assert.True(t, ack.requeue[2])
	})

	t.Run("Should do nothing for an empty batch", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{}, stats)

		w.flush(ctx, nil, nil)

		assert.Empty(t, stats.calls)
	})
}

func TestWorker_Run(t *testing.T) {
	clickedAt := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC)

	t.Run("Should flush when the batch size is reached", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{BatchSize: 2, FlushInterval: time.Hour}, stats)
		ack := newFakeAcknowledger()

		msgs := make(chan amqp091.Delivery, 2)
		msgs <- delivery(t, ack, 1, recorder.QueuedClick{ClickID: "c1", OfferID: int64Ptr(100), ClickedAt: clickedAt})
		msgs <- delivery(t, ack, 2, recorder.QueuedClick{ClickID: "c2", OfferID: int64Ptr(100), ClickedAt: clickedAt})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx, msgs) }()

		require.Eventually(t, func() bool {
			ack.mu.Lock()
			defer ack.mu.Unlock()
			return len(ack.acked) == 2
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		require.Len(t, stats.calls, 1)
		assert.Equal(t, int64(2), stats.calls[0].delta)
	})

	t.Run("Should flush a partial batch on the timer", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, stats)
		ack := newFakeAcknowledger()

		msgs := make(chan amqp091.Delivery, 1)
		msgs <- delivery(t, ack, 1, recorder.QueuedClick{ClickID: "c1", OfferID: int64Ptr(100), ClickedAt: clickedAt})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx, msgs) }()

		require.Eventually(t, func() bool {
			ack.mu.Lock()
			defer ack.mu.Unlock()
			return len(ack.acked) == 1
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("Should reject an undecodable message without requeue", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{BatchSize: 1, FlushInterval: time.Hour}, stats)
		ack := newFakeAcknowledger()

		msgs := make(chan amqp091.Delivery, 1)
		msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("{not json")}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx, msgs) }()

		require.Eventually(t, func() bool {
			ack.mu.Lock()
			defer ack.mu.Unlock()
			return len(ack.rejected) == 1
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		assert.False(t, ack.requeue[1])
		assert.Empty(t, stats.calls)
	})

	t.Run("Should flush the remaining batch when the channel closes", func(t *testing.T) {
		stats := &fakeStatsWriter{}
		w := New(testLogger(), Config{BatchSize: 100, FlushInterval: time.Hour}, stats)
		ack := newFakeAcknowledger()

		msgs := make(chan amqp091.Delivery, 1)
		msgs <- delivery(t, ack, 1, recorder.QueuedClick{ClickID: "c1", OfferID: int64Ptr(100), ClickedAt: clickedAt})
		close(msgs)

		require.NoError(t, w.Run(context.Background(), msgs))

		assert.Equal(t, []uint64{1}, ack.acked)
		require.Len(t, stats.calls, 1)
	})
}
