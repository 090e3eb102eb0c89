package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateClickID is returned when the clicks uniqueness constraint
// rejects an insert. The recorder swallows it; it exists as a distinct error
// so tests and metrics can tell it apart from real storage failures.
var ErrDuplicateClickID = errors.New("store: duplicate click_id")

// InsertClickLog appends one raw click log row. It is called for every
// redirect request, including the ones that resolved to nothing.
func (s *PostgresStore) InsertClickLog(ctx context.Context, cl *ClickLog) error {
	query := `
		INSERT INTO click_logs (domain_id, partner_id, offer_id, rule_id,
		                        ip_address, user_agent, referer, redirect_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, clicked_at
	`

	err := s.db.QueryRow(ctx, query,
		cl.DomainID,
		cl.PartnerID,
		cl.OfferID,
		cl.RuleID,
		cl.IPAddress,
		cl.UserAgent,
		cl.Referer,
		cl.RedirectURL,
	).Scan(&cl.ID, &cl.ClickedAt)
	if err != nil {
		return fmt.Errorf("failed to insert click log: %w", err)
	}

	return nil
}

// InsertClick appends one attribution row. click_id uniqueness is enforced
// by the database; a violation surfaces as ErrDuplicateClickID.
func (s *PostgresStore) InsertClick(ctx context.Context, c *Click) error {
	query := `
		INSERT INTO clicks (partner_id, creative_id, click_id, ip_hash, ua_hash, referrer)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, ts
	`

	err := s.db.QueryRow(ctx, query,
		c.PartnerID,
		c.CreativeID,
		c.ClickID,
		c.IPHash,
		c.UAHash,
		c.Referrer,
	).Scan(&c.ID, &c.TS)
	if err != nil {
		var pgErr *pgconn.PgError
		// Error Code 23505: unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("click %q: %w", c.ClickID, ErrDuplicateClickID)
		}
		return fmt.Errorf("failed to insert click: %w", err)
	}

	return nil
}

// UpsertClickStats adds delta clicks to the (offer, day) aggregate row,
// creating it when absent. The addition happens in the database so
// concurrent workers never lose counts.
func (s *PostgresStore) UpsertClickStats(ctx context.Context, offerID int64, day time.Time, delta int64) error {
	query := `
		INSERT INTO click_stats (offer_id, day, clicks)
		VALUES ($1, $2, $3)
		ON CONFLICT (offer_id, day)
		DO UPDATE SET clicks = click_stats.clicks + EXCLUDED.clicks
	`

	if _, err := s.db.Exec(ctx, query, offerID, day.UTC().Truncate(24*time.Hour), delta); err != nil {
		return fmt.Errorf("failed to upsert click stats for offer %d: %w", offerID, err)
	}

	return nil
}
