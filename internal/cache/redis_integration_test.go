//go:build integration

package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarins/hermes/internal/store"
	"github.com/dmarins/hermes/internal/testsupport"
)

// TestRedisCache_Integration runs the snapshot cache against a real Redis
// container to verify the JSON round-trips the router and syncer depend on.
func TestRedisCache_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err, "failed to start redis container")

	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	snapshots := redisContainer.Cache

	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, snapshots.HealthCheck(ctx))
	})

	t.Run("DomainSnapshot_RoundTrips", func(t *testing.T) {
		d := &store.Domain{ID: 1, DomainName: "track.example.com", IsActive: true}
		require.NoError(t, snapshots.SetDomain(ctx, d))

		got, ok, err := snapshots.GetDomain(ctx, "track.example.com")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, d.DomainName, got.DomainName)
		assert.True(t, got.IsActive)
	})

	t.Run("DomainSnapshot_MissIsNotAnError", func(t *testing.T) {
		got, ok, err := snapshots.GetDomain(ctx, "unknown.example.com")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("PartnerSnapshot_RoundTrips", func(t *testing.T) {
		p := &store.Partner{ID: 2, AffID: "aff-1", PartnerName: "Acme Media", IsActive: true}
		require.NoError(t, snapshots.SetPartner(ctx, p))

		got, ok, err := snapshots.GetPartner(ctx, "aff-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Acme Media", got.PartnerName)
	})

	t.Run("RuleSet_RoundTripsPerTierScope", func(t *testing.T) {
		partnerID := int64(2)
		matches := []store.RuleMatch{
			{RuleID: 10, RuleType: store.TierPartner, PartnerID: &partnerID, OfferID: 100, OfferName: "Offer A", Priority: 1, DestinationURL: "https://hop.clickbank.net/a"},
			{RuleID: 11, RuleType: store.TierPartner, PartnerID: &partnerID, OfferID: 200, OfferName: "Offer B", Priority: 2, DestinationURL: "https://hop.clickbank.net/b"},
		}
		require.NoError(t, snapshots.SetRuleSet(ctx, store.TierPartner, partnerID, matches))

		got, ok, err := snapshots.GetRuleSet(ctx, store.TierPartner, partnerID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.Equal(t, int64(10), got[0].RuleID, "cached sets must keep their order")
		assert.Equal(t, "https://hop.clickbank.net/b", got[1].DestinationURL)

		// Same scope id under another tier is a different key.
		_, ok, err = snapshots.GetRuleSet(ctx, store.TierDomain, partnerID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RuleSet_CachedEmptySetIsAHit", func(t *testing.T) {
		require.NoError(t, snapshots.SetRuleSet(ctx, store.TierGlobal, 0, []store.RuleMatch{}))

		got, ok, err := snapshots.GetRuleSet(ctx, store.TierGlobal, 0)
		require.NoError(t, err)
		assert.True(t, ok, "an empty set means 'no rules', not 'never synced'")
		assert.Empty(t, got)
	})
}
