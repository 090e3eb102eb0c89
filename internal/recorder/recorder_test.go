package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarins/hermes/internal/resolver"
	"github.com/dmarins/hermes/internal/store"
	"github.com/dmarins/hermes/internal/testsupport"
)

// fakeClickRepo records writes and can inject failures per operation.
type fakeClickRepo struct {
	mu        sync.Mutex
	clickLogs []store.ClickLog
	clicks    []store.Click

	clickLogErr error
	clickErr    error
}

func (f *fakeClickRepo) InsertClickLog(_ context.Context, cl *store.ClickLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clickLogErr != nil {
		return f.clickLogErr
	}
	f.clickLogs = append(f.clickLogs, *cl)
	return nil
}

func (f *fakeClickRepo) InsertClick(_ context.Context, c *store.Click) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks = append(f.clicks, *c)
	return nil
}

func (f *fakeClickRepo) UpsertClickStats(context.Context, int64, time.Time, int64) error {
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []QueuedClick
	err    error
}

func (f *fakePublisher) PublishClick(_ context.Context, ev QueuedClick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 { return &v }

func matchedEvent() Event {
	return Event{
		ClickID: "11111111-2222-3333-4444-555555555555",
		Resolution: resolver.ResolutionContext{
			DomainID:    int64Ptr(10),
			PartnerID:   int64Ptr(20),
			RuleID:      int64Ptr(1),
			OfferID:     int64Ptr(100),
			RedirectURL: "https://hop.example/a",
			Source:      resolver.SourcePartner,
		},
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		Referer:   "https://blog.example.com/post",
	}
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("Should write click log, attribution click and queue event on a match", func(t *testing.T) {
		repo := &fakeClickRepo{}
		pub := &fakePublisher{}
		rec := New(repo, pub, silentLogger())

		rec.record(ctx, matchedEvent())

		require.Len(t, repo.clickLogs, 1)
		cl := repo.clickLogs[0]
		assert.Equal(t, int64(20), *cl.PartnerID)
		assert.Equal(t, int64(1), *cl.RuleID)
		assert.Equal(t, "https://hop.example/a", cl.RedirectURL)
		assert.Equal(t, "203.0.113.7", cl.IPAddress)
		assert.Equal(t, "Mozilla/5.0", cl.UserAgent)

		require.Len(t, repo.clicks, 1)
		c := repo.clicks[0]
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", c.ClickID)
		assert.Equal(t, int64(20), *c.PartnerID)

		require.Len(t, pub.events, 1)
		assert.Equal(t, "partner", pub.events[0].Source)
		assert.Equal(t, int64(100), *pub.events[0].OfferID)
	})

	t.Run("Should hash IP and user agent in the attribution record", func(t *testing.T) {
		repo := &fakeClickRepo{}
		rec := New(repo, nil, silentLogger())

		rec.record(ctx, matchedEvent())

		require.Len(t, repo.clicks, 1)
		ipSum := sha256.Sum256([]byte("203.0.113.7"))
		uaSum := sha256.Sum256([]byte("Mozilla/5.0"))
		assert.Equal(t, hex.EncodeToString(ipSum[:]), repo.clicks[0].IPHash)
		assert.Equal(t, hex.EncodeToString(uaSum[:]), repo.clicks[0].UAHash)
		// The raw values must not leak into the attribution row.
		assert.NotContains(t, repo.clicks[0].IPHash, "203.0.113.7")
	})

	t.Run("Should write only the click log when no partner resolved", func(t *testing.T) {
		repo := &fakeClickRepo{}
		pub := &fakePublisher{}
		rec := New(repo, pub, silentLogger())

		ev := Event{
			ClickID: "aaaa",
			Resolution: resolver.ResolutionContext{
				RedirectURL: "https://hop.example/global",
				Source:      resolver.SourceGlobal,
			},
			IPAddress: "203.0.113.7",
		}
		rec.record(ctx, ev)

		require.Len(t, repo.clickLogs, 1)
		assert.Empty(t, repo.clicks)
		// A matched redirect still feeds analytics, partner or not.
		assert.Len(t, pub.events, 1)
	})

	t.Run("Should write an empty-URL click log and skip publishing on no match", func(t *testing.T) {
		repo := &fakeClickRepo{}
		pub := &fakePublisher{}
		rec := New(repo, pub, silentLogger())

		ev := Event{
			ClickID:    "bbbb",
			Resolution: resolver.ResolutionContext{Source: resolver.SourceNone},
		}
		rec.record(ctx, ev)

		require.Len(t, repo.clickLogs, 1)
		assert.Empty(t, repo.clickLogs[0].RedirectURL)
		assert.Empty(t, repo.clicks)
		assert.Empty(t, pub.events)
	})

	t.Run("Should swallow a click log failure and still write the click", func(t *testing.T) {
		repo := &fakeClickRepo{clickLogErr: errors.New("connection refused")}
		rec := New(repo, nil, silentLogger())

		rec.record(ctx, matchedEvent())

		assert.Empty(t, repo.clickLogs)
		assert.Len(t, repo.clicks, 1)
	})

	t.Run("Should swallow a duplicate click_id", func(t *testing.T) {
		repo := &fakeClickRepo{clickErr: store.ErrDuplicateClickID}
		rec := New(repo, nil, silentLogger())

		rec.record(ctx, matchedEvent())

		assert.Len(t, repo.clickLogs, 1)
		assert.Empty(t, repo.clicks)
	})

	t.Run("Should swallow a publish failure", func(t *testing.T) {
		repo := &fakeClickRepo{}
		pub := &fakePublisher{err: errors.New("channel closed")}
		rec := New(repo, pub, silentLogger())

		rec.record(ctx, matchedEvent())

		assert.Len(t, repo.clickLogs, 1)
		assert.Len(t, repo.clicks, 1)
	})
}

func TestRecorder_CloseDrainsInflightWrites(t *testing.T) {
	repo := &fakeClickRepo{}
	rec := New(repo, nil, silentLogger())

	testsupport.AssertMetricDeltaAsync(t, "hermes_recorder_writes_total",
		map[string]string{"kind": "click_log", "status": "ok"}, 10, func() {
			for i := 0; i < 10; i++ {
				rec.Record(matchedEvent())
			}
		})
	rec.Close()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.clickLogs, 10)
	assert.Len(t, repo.clicks, 10)
}
