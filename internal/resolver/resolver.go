package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/dmarins/hermes/internal/store"
)

// Resolver walks the redirect priority cascade over a RoutingRepository.
// It holds no per-request state; a single instance serves all requests.
type Resolver struct {
	repo   store.RoutingRepository
	logger *slog.Logger
}

// New creates a Resolver. If logger is nil, it defaults to slog.Default().
func New(repo store.RoutingRepository, logger *slog.Logger) *Resolver {
	if repo == nil {
		panic("resolver: routing repository cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{repo: repo, logger: logger}
}

// Resolve evaluates the cascade in its fixed order, stopping at the first
// success:
//
//  1. explicit `u` override (absolute https URL, used verbatim)
//  2. explicit `c` creative/offer reference
//  3. partner-specific rule
//  4. domain-specific rule
//  5. global rule
//
// Malformed override URLs and creative ids are ignored silently and the
// cascade continues. Store failures on a tier are logged and treated as no
// match for that tier: the redirect path fails safe toward 404, never 5xx.
//
// The returned ResolutionContext is valid even when the error is ErrNoMatch
// so the caller can still record the click log.
func (r *Resolver) Resolve(ctx context.Context, req Request) (ResolutionContext, error) {
	rc := ResolutionContext{Source: SourceNone}

	// Domain and partner lookups have no data dependency, so they run
	// concurrently. Lookup failures degrade to "not resolved".
	domain, partner := r.lookupEntities(ctx, req)

	if domain != nil {
		rc.DomainID = &domain.ID
	}
	if partner != nil && partner.IsActive {
		rc.PartnerID = &partner.ID
	}

	// 1. Explicit destination override wins over everything.
	if dest, ok := validOverrideURL(req.OverrideURL); ok {
		rc.RedirectURL = dest
		rc.Source = SourceOverride
		return rc, nil
	}

	// 2. Explicit creative/offer reference.
	if rc2, ok := r.resolveCreativeRef(ctx, rc, req.CreativeRef); ok {
		return rc2, nil
	}

	// 3-5. Rule tiers, strictly ordered. Each tier runs only when its scope
	// resolved; the global tier always runs.
	if rc.PartnerID != nil {
		if rc2, ok := r.resolveTier(ctx, rc, store.TierPartner, *rc.PartnerID, SourcePartner); ok {
			return rc2, nil
		}
	}
	if domain != nil && domain.IsActive {
		if rc2, ok := r.resolveTier(ctx, rc, store.TierDomain, domain.ID, SourceDomain); ok {
			return rc2, nil
		}
	}
	if rc2, ok := r.resolveTier(ctx, rc, store.TierGlobal, 0, SourceGlobal); ok {
		return rc2, nil
	}

	return rc, ErrNoMatch
}

// lookupEntities resolves the requesting domain and the partner in parallel.
// Either result may be nil: unknown, inactive partner, empty input or a
// failed lookup all end up the same way for the caller.
func (r *Resolver) lookupEntities(ctx context.Context, req Request) (*store.Domain, *store.Partner) {
	var (
		wg      sync.WaitGroup
		domain  *store.Domain
		partner *store.Partner
	)

	if req.DomainName != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := r.repo.FindDomainByName(ctx, req.DomainName)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					r.logger.Warn("domain lookup failed",
						slog.String("domain", req.DomainName),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			domain = d
		}()
	}

	if req.AffID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.repo.FindPartnerByAffID(ctx, req.AffID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					r.logger.Warn("partner lookup failed",
						slog.String("aff_id", req.AffID),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			partner = p
		}()
	}

	wg.Wait()
	return domain, partner
}

// validOverrideURL accepts only well-formed absolute https URLs. Anything
// else is ignored so the cascade continues; a malformed override is not an
// error condition.
func validOverrideURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", false
	}

	return raw, true
}

// resolveCreativeRef resolves the explicit `c` parameter: an active creative
// owned by the current partner first, then an active offer by id. The
// matched rule/offer columns of the click log stay nil on this path; only a
// verified creative id is recorded.
func (r *Resolver) resolveCreativeRef(ctx context.Context, rc ResolutionContext, ref string) (ResolutionContext, bool) {
	if ref == "" {
		return rc, false
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		// Not an id at all; fall through to the rule tiers.
		return rc, false
	}

	var target Targetable

	if rc.PartnerID != nil {
		creative, err := r.repo.FindCreative(ctx, id, *rc.PartnerID)
		switch {
		case err == nil:
			rc.CreativeID = &creative.ID
			target = creative
		case !errors.Is(err, store.ErrNotFound):
			r.logger.Warn("creative lookup failed",
				slog.Int64("creative_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if target == nil {
		offer, err := r.repo.FindActiveOffer(ctx, id)
		switch {
		case err == nil:
			target = offer
		case !errors.Is(err, store.ErrNotFound):
			r.logger.Warn("offer lookup failed",
				slog.Int64("offer_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if target == nil || !target.Active() {
		return rc, false
	}

	rc.RedirectURL = target.DestinationURL()
	rc.Source = SourceCreative
	return rc, true
}

// resolveTier picks the top eligible rule of one tier. The store returns
// rules ordered by priority ASC, id ASC with paused rules and inactive
// offers already filtered out, so the first row is the winner.
func (r *Resolver) resolveTier(ctx context.Context, rc ResolutionContext, tier string, scopeID int64, src Source) (ResolutionContext, bool) {
	matches, err := r.repo.FindRuleMatches(ctx, tier, scopeID)
	if err != nil {
		// Fail safe: a broken tier lookup must degrade to 404, never 5xx.
		r.logger.Warn("rule tier lookup failed",
			slog.String("tier", tier),
			slog.Int64("scope_id", scopeID),
			slog.String("error", err.Error()),
		)
		return rc, false
	}
	if len(matches) == 0 {
		return rc, false
	}

	m := matches[0]
	rc.RuleID = &m.RuleID
	rc.OfferID = &m.OfferID
	rc.RedirectURL = m.DestinationURL
	rc.Source = src
	return rc, true
}
