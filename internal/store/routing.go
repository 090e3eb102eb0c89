package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time checks to verify that PostgresStore implements the repository
// interfaces. If an interface changes and the struct doesn't, the build
// fails here.
var (
	_ RoutingRepository  = (*PostgresStore)(nil)
	_ ClickRepository    = (*PostgresStore)(nil)
	_ SnapshotRepository = (*PostgresStore)(nil)
)

// PostgresStore is the repository implementation backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given
// connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// FindDomainByName looks a domain up by hostname. The comparison is
// case-insensitive because Host headers arrive in arbitrary casing.
func (s *PostgresStore) FindDomainByName(ctx context.Context, name string) (*Domain, error) {
	query := `
		SELECT id, domain_name, is_active, created_at
		FROM domains
		WHERE lower(domain_name) = lower($1)
	`

	var d Domain
	err := s.db.QueryRow(ctx, query, name).Scan(&d.ID, &d.DomainName, &d.IsActive, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find domain %q: %w", name, err)
	}

	return &d, nil
}

// FindPartnerByAffID looks a partner up by its public affiliate id.
func (s *PostgresStore) FindPartnerByAffID(ctx context.Context, affID string) (*Partner, error) {
	query := `
		SELECT id, aff_id, partner_name, is_active, created_at
		FROM partners
		WHERE aff_id = $1
	`

	var p Partner
	err := s.db.QueryRow(ctx, query, affID).Scan(&p.ID, &p.AffID, &p.PartnerName, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find partner %q: %w", affID, err)
	}

	return &p, nil
}

// FindActiveOffer returns the offer only when it exists and is active.
// An inactive offer is reported as ErrNotFound, matching the resolver's
// "treated as not present" contract.
func (s *PostgresStore) FindActiveOffer(ctx context.Context, id int64) (*Offer, error) {
	query := `
		SELECT id, offer_name, clickbank_vendor, clickbank_hoplink, is_active, created_at
		FROM offers
		WHERE id = $1 AND is_active = true
	`

	var o Offer
	err := s.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.OfferName, &o.ClickbankVendor, &o.ClickbankHoplink, &o.IsActive, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find offer %d: %w", id, err)
	}

	return &o, nil
}

// FindRuleMatches returns the eligible rules for one tier ordered by
// priority ASC, id ASC. Eligibility (rule not paused, offer active) is
// enforced in the query so a paused rule or inactive offer behaves exactly
// as if it did not exist.
func (s *PostgresStore) FindRuleMatches(ctx context.Context, tier string, scopeID int64) ([]RuleMatch, error) {
	query := `
		SELECT r.id, r.rule_name, r.rule_type, r.domain_id, r.partner_id,
		       r.offer_id, o.offer_name, r.priority, o.clickbank_hoplink
		FROM redirect_rules r
		JOIN offers o ON o.id = r.offer_id
		WHERE r.rule_type = $1
		  AND r.is_paused = false
		  AND o.is_active = true
	`

	args := []any{tier}
	switch tier {
	case TierPartner:
		query += ` AND r.partner_id = $2`
		args = append(args, scopeID)
	case TierDomain:
		query += ` AND r.domain_id = $2`
		args = append(args, scopeID)
	case TierGlobal:
		// No scope filter.
	default:
		return nil, fmt.Errorf("unknown rule tier %q", tier)
	}

	query += ` ORDER BY r.priority ASC, r.id ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rules: %w", tier, err)
	}
	defer rows.Close()

	return scanRuleMatches(rows)
}

// FindCreative returns the creative only when it exists, is active and is
// owned by the given partner. Ownership is checked in the query so a
// caller-supplied creative id can never cross partners.
func (s *PostgresStore) FindCreative(ctx context.Context, id, partnerID int64) (*Creative, error) {
	query := `
		SELECT id, partner_id, name, creative_type, destination_hoplink, weight, is_active, created_at
		FROM creatives
		WHERE id = $1 AND partner_id = $2 AND is_active = true
	`

	var c Creative
	err := s.db.QueryRow(ctx, query, id, partnerID).Scan(
		&c.ID, &c.PartnerID, &c.Name, &c.CreativeType,
		&c.DestinationHoplink, &c.Weight, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find creative %d: %w", id, err)
	}

	return &c, nil
}

// FindActiveCreatives lists a partner's active creatives, highest weight
// first so the snippet response is stable across requests.
func (s *PostgresStore) FindActiveCreatives(ctx context.Context, partnerID int64) ([]Creative, error) {
	query := `
		SELECT id, partner_id, name, creative_type, destination_hoplink, weight, is_active, created_at
		FROM creatives
		WHERE partner_id = $1 AND is_active = true
		ORDER BY weight DESC, id ASC
	`

	rows, err := s.db.Query(ctx, query, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list creatives for partner %d: %w", partnerID, err)
	}
	defer rows.Close()

	var creatives []Creative
	for rows.Next() {
		var c Creative
		if err := rows.Scan(
			&c.ID, &c.PartnerID, &c.Name, &c.CreativeType,
			&c.DestinationHoplink, &c.Weight, &c.IsActive, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan creative row: %w", err)
		}
		creatives = append(creatives, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return creatives, nil
}

// ListActiveDomains returns every active domain for the syncer snapshot.
func (s *PostgresStore) ListActiveDomains(ctx context.Context) ([]Domain, error) {
	query := `
		SELECT id, domain_name, is_active, created_at
		FROM domains
		WHERE is_active = true
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.ID, &d.DomainName, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan domain row: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return domains, nil
}

// ListActivePartners returns every active partner for the syncer snapshot.
func (s *PostgresStore) ListActivePartners(ctx context.Context) ([]Partner, error) {
	query := `
		SELECT id, aff_id, partner_name, is_active, created_at
		FROM partners
		WHERE is_active = true
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rows.Close()

	var partners []Partner
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.ID, &p.AffID, &p.PartnerName, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan partner row: %w", err)
		}
		partners = append(partners, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return partners, nil
}

// ListEligibleRules returns every eligible rule across all tiers, ordered so
// the syncer can group them into per-scope sets without re-sorting.
func (s *PostgresStore) ListEligibleRules(ctx context.Context) ([]RuleMatch, error) {
	query := `
		SELECT r.id, r.rule_name, r.rule_type, r.domain_id, r.partner_id,
		       r.offer_id, o.offer_name, r.priority, o.clickbank_hoplink
		FROM redirect_rules r
		JOIN offers o ON o.id = r.offer_id
		WHERE r.is_paused = false
		  AND o.is_active = true
		ORDER BY r.rule_type, r.partner_id, r.domain_id, r.priority ASC, r.id ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible rules: %w", err)
	}
	defer rows.Close()

	return scanRuleMatches(rows)
}

// scanRuleMatches maps rule+offer rows into RuleMatch values.
func scanRuleMatches(rows pgx.Rows) ([]RuleMatch, error) {
	var matches []RuleMatch
	for rows.Next() {
		var m RuleMatch
		if err := rows.Scan(
			&m.RuleID, &m.RuleName, &m.RuleType, &m.DomainID, &m.PartnerID,
			&m.OfferID, &m.OfferName, &m.Priority, &m.DestinationURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return matches, nil
}
