// Package resolver implements the redirect resolution engine: given an
// inbound request context (requesting domain, affiliate id, optional explicit
// override or creative reference) it deterministically picks a destination
// URL by walking a fixed priority cascade.
package resolver

import (
	"errors"

	"github.com/dmarins/hermes/internal/store"
)

// ErrNoMatch is returned when no tier of the cascade yields a usable
// destination. It is a normal outcome, not an application error; the HTTP
// layer maps it to 404.
var ErrNoMatch = errors.New("resolver: no redirect rule matched")

// Errors of the snippet-config read path. The HTTP layer maps them to
// 404 and 403 respectively.
var (
	ErrPartnerNotFound  = errors.New("resolver: partner not found or not approved")
	ErrDomainNotAllowed = errors.New("resolver: requesting domain not allowed")
)

// Targetable is the capability shared by the two routing mechanisms the
// system grew: offers reached through redirect rules and snippet-system
// creatives. Unifying them keeps the cascade logic in one place.
type Targetable interface {
	// DestinationURL returns the hoplink to redirect to.
	DestinationURL() string
	// Active reports whether this target may currently be selected.
	Active() bool
}

// Both targeting variants must satisfy the capability.
var (
	_ Targetable = (*store.Offer)(nil)
	_ Targetable = (*store.Creative)(nil)
)

// Source identifies which step of the cascade produced the destination.
type Source string

const (
	// SourceOverride is a verbatim `u` parameter destination.
	SourceOverride Source = "override"
	// SourceCreative is an explicit `c` creative/offer reference.
	SourceCreative Source = "creative"
	// SourcePartner, SourceDomain and SourceGlobal are the rule tiers.
	SourcePartner Source = "partner"
	SourceDomain  Source = "domain"
	SourceGlobal  Source = "global"
	// SourceNone means the cascade fell all the way through.
	SourceNone Source = "none"
)

// Request carries the raw inputs of one redirect request. All fields are
// caller-supplied strings; the resolver validates them itself and silently
// ignores anything malformed.
type Request struct {
	// DomainName is the Host header with any port stripped.
	DomainName string
	// AffID is the raw aff_id query parameter.
	AffID string
	// OverrideURL is the raw `u` query parameter.
	OverrideURL string
	// CreativeRef is the raw `c` query parameter.
	CreativeRef string
}

// ResolutionContext accumulates the outcome of the cascade. It is passed by
// value through each step; every field starts nil/empty and is only filled
// in by the step that established it. The click recorder consumes it as-is,
// including for requests that resolved to nothing.
type ResolutionContext struct {
	// DomainID is set when the requesting domain is registered, active or
	// not. Tier matching additionally requires the domain to be active.
	DomainID *int64

	// PartnerID is set when aff_id resolved to an active partner.
	PartnerID *int64

	// RuleID and OfferID are set only when a rule tier matched; they stay
	// nil for override and creative resolutions.
	RuleID  *int64
	OfferID *int64

	// CreativeID is set only when a creative reference was verified against
	// the store. Caller-supplied ids are never trusted without that check.
	CreativeID *int64

	// RedirectURL is the chosen destination, empty on no match.
	RedirectURL string

	// Source records which cascade step decided.
	Source Source
}

// Matched reports whether the cascade produced a destination.
func (rc ResolutionContext) Matched() bool {
	return rc.RedirectURL != ""
}
