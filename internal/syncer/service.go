// Package syncer implements the background worker that propagates routing
// data from PostgreSQL into the Redis snapshot cache the router reads
// from. It polls on a fixed interval; the router tolerates staleness up to
// the snapshot TTL.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmarins/hermes/internal/cache"
	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/store"
)

// Config holds the configuration for the syncer service.
type Config struct {
	// Interval is the duration between sync cycles (polling).
	Interval time.Duration
}

// Service orchestrates the snapshot synchronization.
type Service struct {
	logger *slog.Logger
	config Config
	repo   store.SnapshotRepository
	cache  cache.SnapshotCache
}

// New creates a new syncer service.
func New(logger *slog.Logger, cfg Config, repo store.SnapshotRepository, snapshots cache.SnapshotCache) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if repo == nil {
		panic("syncer: snapshot repository cannot be nil")
	}
	if snapshots == nil {
		panic("syncer: snapshot cache cannot be nil")
	}

	if cfg.Interval < time.Second {
		cfg.Interval = 10 * time.Second // Safe default
	}

	return &Service{
		logger: logger,
		config: cfg,
		repo:   repo,
		cache:  snapshots,
	}
}

// Run starts the sync loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service", slog.String("interval", s.config.Interval.String()))

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run once immediately on startup
	if err := s.sync(ctx); err != nil {
		s.logger.Error("initial sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping...")
			return nil
		case <-ticker.C:
			if err := s.sync(ctx); err != nil {
				// Log and retry on the next tick; one bad cycle only
				// delays freshness.
				s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// scope identifies one rule set in the cache: a tier plus the entity the
// tier is keyed on (0 for the global tier).
type scope struct {
	tier string
	id   int64
}

// sync performs a single snapshot cycle: domains, partners, then the
// per-scope rule sets. Scopes without eligible rules are written as empty
// sets so the router's read path distinguishes "no rules" from "not yet
// synced".
func (s *Service) sync(ctx context.Context) error {
	start := time.Now()
	status := "success"
	defer func() {
		observability.SyncerCycleDuration.Observe(time.Since(start).Seconds())
		observability.SyncerCyclesTotal.WithLabelValues(status).Inc()
	}()

	domains, err := s.repo.ListActiveDomains(ctx)
	if err != nil {
		status = "fail"
		return err
	}

	partners, err := s.repo.ListActivePartners(ctx)
	if err != nil {
		status = "fail"
		return err
	}

	rules, err := s.repo.ListEligibleRules(ctx)
	if err != nil {
		status = "fail"
		return err
	}

	sets := groupRules(rules)

	// Every active scope gets a set, empty or not. The global set always
	// exists.
	if _, ok := sets[scope{store.TierGlobal, 0}]; !ok {
		sets[scope{store.TierGlobal, 0}] = []store.RuleMatch{}
	}
	for _, p := range partners {
		if _, ok := sets[scope{store.TierPartner, p.ID}]; !ok {
			sets[scope{store.TierPartner, p.ID}] = []store.RuleMatch{}
		}
	}
	for _, d := range domains {
		if _, ok := sets[scope{store.TierDomain, d.ID}]; !ok {
			sets[scope{store.TierDomain, d.ID}] = []store.RuleMatch{}
		}
	}

	count := 0
	errorCount := 0

	for i := range domains {
		if err := s.cache.SetDomain(ctx, &domains[i]); err != nil {
			s.logger.Warn("failed to sync domain",
				slog.String("domain", domains[i].DomainName),
				slog.String("error", err.Error()),
			)
			errorCount++
			continue
		}
		count++
	}

	for i := range partners {
		if err := s.cache.SetPartner(ctx, &partners[i]); err != nil {
			s.logger.Warn("failed to sync partner",
				slog.String("aff_id", partners[i].AffID),
				slog.String("error", err.Error()),
			)
			errorCount++
			continue
		}
		count++
	}

	for sc, matches := range sets {
		if err := s.cache.SetRuleSet(ctx, sc.tier, sc.id, matches); err != nil {
			s.logger.Warn("failed to sync rule set",
				slog.String("tier", sc.tier),
				slog.Int64("scope_id", sc.id),
				slog.String("error", err.Error()),
			)
			errorCount++
			continue
		}
		count++
	}

	if errorCount > 0 {
		status = "fail"
	}

	s.logger.Info("sync cycle completed",
		slog.Int("synced", count),
		slog.Int("errors", errorCount),
		slog.Int("rule_sets", len(sets)),
		slog.String("duration", time.Since(start).String()),
	)
	return nil
}

// groupRules buckets eligible rules into per-scope sets. Input order is
// preserved inside each bucket; the store already sorts by priority then id.
func groupRules(rules []store.RuleMatch) map[scope][]store.RuleMatch {
	sets := make(map[scope][]store.RuleMatch)

	for _, r := range rules {
		var sc scope
		switch r.RuleType {
		case store.TierPartner:
			if r.PartnerID == nil {
				continue // malformed row, scope column missing
			}
			sc = scope{store.TierPartner, *r.PartnerID}
		case store.TierDomain:
			if r.DomainID == nil {
				continue
			}
			sc = scope{store.TierDomain, *r.DomainID}
		case store.TierGlobal:
			sc = scope{store.TierGlobal, 0}
		default:
			continue
		}
		sets[sc] = append(sets[sc], r)
	}

	return sets
}
