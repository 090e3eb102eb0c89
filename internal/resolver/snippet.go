package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/dmarins/hermes/internal/store"
)

// SnippetCreative is one selectable target in the snippet-config response.
// Weight drives the client-side weighted random pick; higher wins more.
type SnippetCreative struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	DestinationHoplink string `json:"destination_hoplink"`
	Weight             int    `json:"weight"`
}

// SnippetConfig is the resolved payload of the snippet-config read path.
type SnippetConfig struct {
	Partner   *store.Partner
	Creatives []SnippetCreative
}

// SnippetOptions controls domain validation of the snippet read path.
type SnippetOptions struct {
	// EnforceDomain requires the requesting domain to be registered and
	// active. When false, unknown domains are allowed through.
	EnforceDomain bool
}

// SnippetConfig resolves the ranked creative list for a partner + requesting
// domain without performing a redirect. It applies the same tier fallback as
// the redirect path, reduced to two tiers: partner-specific rules first,
// else global rules.
//
// Returns ErrPartnerNotFound when the partner is unknown or deactivated and
// ErrDomainNotAllowed when domain validation is enforced and fails.
func (r *Resolver) SnippetConfig(ctx context.Context, affID, domainName string, opts SnippetOptions) (*SnippetConfig, error) {
	partner, err := r.repo.FindPartnerByAffID(ctx, affID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("snippet partner lookup failed",
				slog.String("aff_id", affID),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrPartnerNotFound
	}
	if !partner.IsActive {
		return nil, ErrPartnerNotFound
	}

	if opts.EnforceDomain {
		domain, err := r.repo.FindDomainByName(ctx, domainName)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("snippet domain lookup failed",
					slog.String("domain", domainName),
					slog.String("error", err.Error()),
				)
			}
			return nil, ErrDomainNotAllowed
		}
		if !domain.IsActive {
			return nil, ErrDomainNotAllowed
		}
	}

	cfg := &SnippetConfig{Partner: partner}

	// Partner tier first, global tier as the fallback. A lookup failure on
	// one tier degrades to an empty tier, mirroring the redirect path.
	matches := r.tierMatches(ctx, store.TierPartner, partner.ID)
	if len(matches) == 0 {
		matches = r.tierMatches(ctx, store.TierGlobal, 0)
	}

	for _, m := range matches {
		cfg.Creatives = append(cfg.Creatives, SnippetCreative{
			ID:                 strconv.FormatInt(m.OfferID, 10),
			Name:               m.OfferName,
			Type:               "offer",
			DestinationHoplink: m.DestinationURL,
			Weight:             weightFromPriority(m.Priority),
		})
	}

	// The partner's own creatives ride along with their stored weights.
	creatives, err := r.repo.FindActiveCreatives(ctx, partner.ID)
	if err != nil {
		r.logger.Warn("snippet creatives lookup failed",
			slog.Int64("partner_id", partner.ID),
			slog.String("error", err.Error()),
		)
	}
	for i := range creatives {
		c := &creatives[i]
		cfg.Creatives = append(cfg.Creatives, SnippetCreative{
			ID:                 strconv.FormatInt(c.ID, 10),
			Name:               c.Name,
			Type:               c.CreativeType,
			DestinationHoplink: c.DestinationHoplink,
			Weight:             c.Weight,
		})
	}

	return cfg, nil
}

// tierMatches fetches one tier's eligible rules, degrading to empty on error.
func (r *Resolver) tierMatches(ctx context.Context, tier string, scopeID int64) []store.RuleMatch {
	matches, err := r.repo.FindRuleMatches(ctx, tier, scopeID)
	if err != nil {
		r.logger.Warn("snippet rule tier lookup failed",
			slog.String("tier", tier),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return matches
}

// weightFromPriority derives a client-side selection weight from a rule
// priority. Priority 1 maps to 100, priority 100 and anything weaker maps
// to the floor of 1.
func weightFromPriority(priority int) int {
	w := 101 - priority
	if w < 1 {
		return 1
	}
	return w
}
