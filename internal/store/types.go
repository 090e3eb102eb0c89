// Package store provides the Data Access Layer (Repository) for the Hermes
// routing entities and click records. It handles all direct interactions with
// the PostgreSQL database using the pgx driver.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups when no matching row exists.
// Callers must branch on it with errors.Is, never on the error string.
var ErrNotFound = errors.New("store: not found")

// Rule tiers, from most to least specific. The resolver walks them in this
// order and the ordering must never change: partner routing honors negotiated
// deals, domain routing gives a tracking domain a default product, and the
// global tier is the catch-all.
const (
	TierPartner = "partner"
	TierDomain  = "domain"
	TierGlobal  = "global"
)

// Domain is a tracking domain managed through the admin back office.
type Domain struct {
	ID         int64     `db:"id"`
	DomainName string    `db:"domain_name"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
}

// Partner is an affiliate. AffID is the public identifier partners embed in
// their tracking links; it is the lookup key on the redirect path.
type Partner struct {
	ID          int64     `db:"id"`
	AffID       string    `db:"aff_id"`
	PartnerName string    `db:"partner_name"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

// Offer is a ClickBank product with its hoplink destination.
type Offer struct {
	ID               int64     `db:"id"`
	OfferName        string    `db:"offer_name"`
	ClickbankVendor  string    `db:"clickbank_vendor"`
	ClickbankHoplink string    `db:"clickbank_hoplink"`
	IsActive         bool      `db:"is_active"`
	CreatedAt        time.Time `db:"created_at"`
}

// DestinationURL returns the hoplink this offer redirects to.
func (o *Offer) DestinationURL() string { return o.ClickbankHoplink }

// Active reports whether the offer may be targeted.
func (o *Offer) Active() bool { return o.IsActive }

// Creative is the snippet-system targeting unit. Unlike a RedirectRule it is
// always owned by a single partner and carries its own selection weight.
type Creative struct {
	ID                 int64     `db:"id"`
	PartnerID          int64     `db:"partner_id"`
	Name               string    `db:"name"`
	CreativeType       string    `db:"creative_type"`
	DestinationHoplink string    `db:"destination_hoplink"`
	Weight             int       `db:"weight"`
	IsActive           bool      `db:"is_active"`
	CreatedAt          time.Time `db:"created_at"`
}

// DestinationURL returns the hoplink this creative redirects to.
func (c *Creative) DestinationURL() string { return c.DestinationHoplink }

// Active reports whether the creative may be targeted.
func (c *Creative) Active() bool { return c.IsActive }

// RedirectRule maps a scope (partner, domain or global) to an offer.
// Lower priority wins; ties break on id ascending.
type RedirectRule struct {
	ID        int64     `db:"id"`
	RuleName  string    `db:"rule_name"`
	RuleType  string    `db:"rule_type"`
	DomainID  *int64    `db:"domain_id"`
	PartnerID *int64    `db:"partner_id"`
	OfferID   int64     `db:"offer_id"`
	Priority  int       `db:"priority"`
	IsPaused  bool      `db:"is_paused"`
	CreatedAt time.Time `db:"created_at"`
}

// RuleMatch is a rule joined with its offer's destination, pre-filtered to
// eligible rows only (rule not paused, offer active). It is what the tier
// queries return and what the syncer pushes into the cache.
type RuleMatch struct {
	RuleID         int64  `json:"rule_id"`
	RuleName       string `json:"rule_name"`
	RuleType       string `json:"rule_type"`
	DomainID       *int64 `json:"domain_id,omitempty"`
	PartnerID      *int64 `json:"partner_id,omitempty"`
	OfferID        int64  `json:"offer_id"`
	OfferName      string `json:"offer_name"`
	Priority       int    `json:"priority"`
	DestinationURL string `json:"destination_url"`
}

// ClickLog is the raw, append-only trace of one redirect request. It keeps
// the raw IP and user agent for operational debugging; the hashed Click
// record is the one used for attribution.
type ClickLog struct {
	ID          int64
	DomainID    *int64
	PartnerID   *int64
	OfferID     *int64
	RuleID      *int64
	IPAddress   string
	UserAgent   string
	Referer     string
	RedirectURL string
	ClickedAt   time.Time
}

// Click is the attribution record. ClickID correlates the row with the
// outbound cb_click_id query parameter and the cb_attribution cookie.
type Click struct {
	ID         int64
	PartnerID  *int64
	CreativeID *int64
	ClickID    string
	IPHash     string
	UAHash     string
	Referrer   string
	TS         time.Time
}

// RoutingRepository defines the read operations the redirect path and the
// snippet-config path need. Using an interface allows the cache layer to
// decorate it and tests to fake it.
type RoutingRepository interface {
	// FindDomainByName looks a domain up by its hostname (case-insensitive).
	// Returns ErrNotFound when the domain is not registered at all; inactive
	// domains are returned with IsActive=false so callers can distinguish.
	FindDomainByName(ctx context.Context, name string) (*Domain, error)

	// FindPartnerByAffID looks a partner up by its public affiliate id.
	FindPartnerByAffID(ctx context.Context, affID string) (*Partner, error)

	// FindActiveOffer returns the offer only when it exists and is active.
	FindActiveOffer(ctx context.Context, id int64) (*Offer, error)

	// FindRuleMatches returns the eligible rules for one tier, ordered by
	// priority ASC, id ASC. scopeID is ignored for the global tier.
	FindRuleMatches(ctx context.Context, tier string, scopeID int64) ([]RuleMatch, error)

	// FindCreative returns the creative only when it exists, is active and
	// is owned by the given partner.
	FindCreative(ctx context.Context, id, partnerID int64) (*Creative, error)

	// FindActiveCreatives lists a partner's active creatives for the
	// snippet-config response.
	FindActiveCreatives(ctx context.Context, partnerID int64) ([]Creative, error)
}

// ClickRepository defines the write operations of the click recorder and the
// analytics worker.
type ClickRepository interface {
	// InsertClickLog appends one raw click log row.
	InsertClickLog(ctx context.Context, cl *ClickLog) error

	// InsertClick appends one attribution row. A duplicate click_id fails
	// with the database uniqueness violation.
	InsertClick(ctx context.Context, c *Click) error

	// UpsertClickStats adds delta clicks to the (offer, day) aggregate.
	UpsertClickStats(ctx context.Context, offerID int64, day time.Time, delta int64) error
}

// SnapshotRepository defines the bulk reads the syncer uses to warm the
// Redis cache.
type SnapshotRepository interface {
	ListActiveDomains(ctx context.Context) ([]Domain, error)
	ListActivePartners(ctx context.Context) ([]Partner, error)
	// ListEligibleRules returns every eligible rule across all tiers.
	ListEligibleRules(ctx context.Context) ([]RuleMatch, error)
}
