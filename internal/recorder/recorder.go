// Package recorder persists the two records describing a redirect event: the
// raw click log and the hashed attribution record. Recording is fully
// decoupled from the response path: writes happen on a background goroutine
// and failures are reported to the operational channel only.
package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/resolver"
	"github.com/dmarins/hermes/internal/store"
)

// DefaultWriteTimeout bounds each background write. The response has already
// been sent by then; the bound only protects the goroutine pool from a hung
// backend.
const DefaultWriteTimeout = 5 * time.Second

// Event carries everything the recorder needs about one redirect request.
type Event struct {
	// ClickID is the fresh UUID generated for this request. It correlates
	// the click log, the attribution record, the cb_click_id query
	// parameter and the attribution cookie.
	ClickID string

	// Resolution is the cascade outcome, valid even on no match.
	Resolution resolver.ResolutionContext

	// Raw request attributes. IPAddress and UserAgent are stored verbatim
	// in the click log and only as SHA-256 digests in the attribution row.
	IPAddress string
	UserAgent string
	Referer   string
}

// QueuedClick is the message published to the analytics queue after the
// database writes. The analytics worker aggregates these into per-offer
// daily counts.
type QueuedClick struct {
	ClickID   string    `json:"click_id"`
	OfferID   *int64    `json:"offer_id,omitempty"`
	PartnerID *int64    `json:"partner_id,omitempty"`
	Source    string    `json:"source"`
	ClickedAt time.Time `json:"clicked_at"`
}

// Publisher forwards click events to the analytics queue.
type Publisher interface {
	PublishClick(ctx context.Context, ev QueuedClick) error
}

// Recorder writes click records without ever blocking or failing the
// redirect that produced them.
type Recorder struct {
	clicks    store.ClickRepository
	publisher Publisher // optional; nil disables queue publishing
	logger    *slog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// New creates a Recorder. publisher may be nil when the analytics pipeline
// is disabled. If logger is nil, it defaults to slog.Default().
func New(clicks store.ClickRepository, publisher Publisher, logger *slog.Logger) *Recorder {
	if clicks == nil {
		panic("recorder: click repository cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		clicks:    clicks,
		publisher: publisher,
		logger:    logger,
		timeout:   DefaultWriteTimeout,
	}
}

// Record dispatches the writes for one redirect event and returns
// immediately. The background context is intentionally detached from the
// request: the writes may complete after the response has been sent.
func (r *Recorder) Record(ev Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		r.record(ctx, ev)
	}()
}

// Close waits for in-flight recordings to drain. Called on shutdown so a
// terminating router does not drop the last clicks.
func (r *Recorder) Close() {
	r.wg.Wait()
}

// record performs the actual writes. Every failure is swallowed after
// logging and counting; nothing propagates back to the caller.
func (r *Recorder) record(ctx context.Context, ev Event) {
	res := ev.Resolution

	// 1. The raw click log is written unconditionally, including for
	// requests that resolved to nothing (empty redirect_url keeps a trace
	// of failed-to-resolve traffic).
	clickLog := &store.ClickLog{
		DomainID:    res.DomainID,
		PartnerID:   res.PartnerID,
		OfferID:     res.OfferID,
		RuleID:      res.RuleID,
		IPAddress:   ev.IPAddress,
		UserAgent:   ev.UserAgent,
		Referer:     ev.Referer,
		RedirectURL: res.RedirectURL,
	}
	if err := r.clicks.InsertClickLog(ctx, clickLog); err != nil {
		observability.RecorderWritesTotal.WithLabelValues("click_log", "fail").Inc()
		r.logger.Error("click log write failed",
			slog.String("click_id", ev.ClickID),
			slog.String("error", err.Error()),
		)
	} else {
		observability.RecorderWritesTotal.WithLabelValues("click_log", "ok").Inc()
	}

	// 2. The attribution record is written only when a partner resolved.
	if res.PartnerID != nil {
		click := &store.Click{
			PartnerID:  res.PartnerID,
			CreativeID: res.CreativeID,
			ClickID:    ev.ClickID,
			IPHash:     digest(ev.IPAddress),
			UAHash:     digest(ev.UserAgent),
			Referrer:   ev.Referer,
		}
		if err := r.clicks.InsertClick(ctx, click); err != nil {
			if errors.Is(err, store.ErrDuplicateClickID) {
				// The uniqueness constraint did its job; nothing to retry.
				observability.RecorderWritesTotal.WithLabelValues("click", "duplicate").Inc()
				r.logger.Warn("duplicate click_id rejected by store",
					slog.String("click_id", ev.ClickID),
				)
			} else {
				observability.RecorderWritesTotal.WithLabelValues("click", "fail").Inc()
				r.logger.Error("click write failed",
					slog.String("click_id", ev.ClickID),
					slog.String("error", err.Error()),
				)
			}
		} else {
			observability.RecorderWritesTotal.WithLabelValues("click", "ok").Inc()
		}
	}

	// 3. Feed the analytics pipeline. Only matched redirects are worth
	// aggregating.
	if r.publisher != nil && res.Matched() {
		queued := QueuedClick{
			ClickID:   ev.ClickID,
			OfferID:   res.OfferID,
			PartnerID: res.PartnerID,
			Source:    string(res.Source),
			ClickedAt: time.Now().UTC(),
		}
		if err := r.publisher.PublishClick(ctx, queued); err != nil {
			observability.RecorderWritesTotal.WithLabelValues("publish", "fail").Inc()
			r.logger.Error("click event publish failed",
				slog.String("click_id", ev.ClickID),
				slog.String("error", err.Error()),
			)
		} else {
			observability.RecorderWritesTotal.WithLabelValues("publish", "ok").Inc()
		}
	}
}

// digest returns the hex SHA-256 of a raw request attribute. The
// attribution table never holds raw IPs or user agents.
func digest(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
