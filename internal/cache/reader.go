package cache

import (
	"context"
	"log/slog"

	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/store"
)

// Compile-time check: the decorator must be a drop-in RoutingRepository.
var _ store.RoutingRepository = (*ReadThroughReader)(nil)

// ReadThroughReader decorates a RoutingRepository with the two cache layers:
// L1 (otter, rule sets only) and L2 (Redis snapshots). Cache failures
// degrade silently to the next layer; the database remains the source of
// truth. Creative and offer lookups pass straight through: they are rare
// (explicit `c` parameter and snippet assembly) and not worth a snapshot.
type ReadThroughReader struct {
	repo   store.RoutingRepository
	l1     *MemoryCache
	l2     SnapshotCache
	logger *slog.Logger
}

// NewReadThroughReader builds the decorator. l1 may be nil to disable the
// memory layer; repo and l2 are required.
func NewReadThroughReader(repo store.RoutingRepository, l1 *MemoryCache, l2 SnapshotCache, logger *slog.Logger) *ReadThroughReader {
	if repo == nil {
		panic("cache: routing repository cannot be nil")
	}
	if l2 == nil {
		panic("cache: snapshot cache cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ReadThroughReader{repo: repo, l1: l1, l2: l2, logger: logger}
}

// FindDomainByName reads through L2.
func (r *ReadThroughReader) FindDomainByName(ctx context.Context, name string) (*store.Domain, error) {
	d, ok, err := r.l2.GetDomain(ctx, name)
	r.countL2(ok, err, "domain lookup")
	if ok {
		return d, nil
	}

	d, repoErr := r.repo.FindDomainByName(ctx, name)
	if repoErr != nil {
		return nil, repoErr
	}

	if err := r.l2.SetDomain(ctx, d); err != nil {
		r.logger.Warn("domain cache fill failed", slog.String("error", err.Error()))
	}
	return d, nil
}

// FindPartnerByAffID reads through L2.
func (r *ReadThroughReader) FindPartnerByAffID(ctx context.Context, affID string) (*store.Partner, error) {
	p, ok, err := r.l2.GetPartner(ctx, affID)
	r.countL2(ok, err, "partner lookup")
	if ok {
		return p, nil
	}

	p, repoErr := r.repo.FindPartnerByAffID(ctx, affID)
	if repoErr != nil {
		return nil, repoErr
	}

	if err := r.l2.SetPartner(ctx, p); err != nil {
		r.logger.Warn("partner cache fill failed", slog.String("error", err.Error()))
	}
	return p, nil
}

// FindRuleMatches reads through L1 then L2, filling both on a database hit.
func (r *ReadThroughReader) FindRuleMatches(ctx context.Context, tier string, scopeID int64) ([]store.RuleMatch, error) {
	if r.l1 != nil {
		if matches, ok := r.l1.GetRuleSet(tier, scopeID); ok {
			observability.CacheLookupsTotal.WithLabelValues("l1", "hit").Inc()
			return matches, nil
		}
		observability.CacheLookupsTotal.WithLabelValues("l1", "miss").Inc()
	}

	matches, ok, err := r.l2.GetRuleSet(ctx, tier, scopeID)
	r.countL2(ok, err, "rule set lookup")
	if ok {
		if r.l1 != nil {
			r.l1.SetRuleSet(tier, scopeID, matches)
		}
		return matches, nil
	}

	matches, repoErr := r.repo.FindRuleMatches(ctx, tier, scopeID)
	if repoErr != nil {
		return nil, repoErr
	}

	// Empty sets are cached too; "no eligible rules" is the common case
	// for most partner scopes and must not hammer the database.
	if err := r.l2.SetRuleSet(ctx, tier, scopeID, matches); err != nil {
		r.logger.Warn("rule set cache fill failed", slog.String("error", err.Error()))
	}
	if r.l1 != nil {
		r.l1.SetRuleSet(tier, scopeID, matches)
	}
	return matches, nil
}

// FindActiveOffer passes through to the database.
func (r *ReadThroughReader) FindActiveOffer(ctx context.Context, id int64) (*store.Offer, error) {
	return r.repo.FindActiveOffer(ctx, id)
}

// FindCreative passes through to the database.
func (r *ReadThroughReader) FindCreative(ctx context.Context, id, partnerID int64) (*store.Creative, error) {
	return r.repo.FindCreative(ctx, id, partnerID)
}

// FindActiveCreatives passes through to the database.
func (r *ReadThroughReader) FindActiveCreatives(ctx context.Context, partnerID int64) ([]store.Creative, error) {
	return r.repo.FindActiveCreatives(ctx, partnerID)
}

// countL2 records an L2 lookup outcome and logs degradations.
func (r *ReadThroughReader) countL2(ok bool, err error, op string) {
	switch {
	case err != nil:
		observability.CacheLookupsTotal.WithLabelValues("l2", "error").Inc()
		r.logger.Warn("cache degraded to database", slog.String("op", op), slog.String("error", err.Error()))
	case ok:
		observability.CacheLookupsTotal.WithLabelValues("l2", "hit").Inc()
	default:
		observability.CacheLookupsTotal.WithLabelValues("l2", "miss").Inc()
	}
}
