package eligibility_test

import (
	"context"
	"testing"
	"time"

	"seedloop-core/services/eligibility"
	"seedloop-core/services/fulfillment"
	"seedloop-core/services/offer"
	"seedloop-core/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAcceptanceDecision(t *testing.T) {
	cases := []struct {
		name       string
		threshold  int64
		autoAccept bool
		followers  int64
		want       eligibility.Decision
	}{
		{"above threshold with opt-in", 1000, true, 5000, eligibility.AutoAccept},
		{"exactly at threshold", 1000, true, 1000, eligibility.AutoAccept},
		{"below threshold", 1000, true, 999, eligibility.PendingApproval},
		{"opt-out ignores followers", 1000, false, 5000, eligibility.PendingApproval},
		{"zero followers", 1000, true, 0, eligibility.PendingApproval},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eligibility.AcceptanceDecision(tc.threshold, tc.autoAccept, tc.followers)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestActiveStrikeCountIgnoresForgiven(t *testing.T) {
	db := testutil.NewTestDB(t, &fulfillment.Strike{})
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, db.Create(&fulfillment.Strike{ID: "s1", CreatorID: "creator-1", MatchID: "m1", Reason: "late"}).Error)
	require.NoError(t, db.Create(&fulfillment.Strike{ID: "s2", CreatorID: "creator-1", MatchID: "m2", Reason: "late", ForgivenAt: &now}).Error)
	require.NoError(t, db.Create(&fulfillment.Strike{ID: "s3", CreatorID: "creator-2", MatchID: "m3", Reason: "late"}).Error)

	count, err := eligibility.ActiveStrikeCount(ctx, db, "creator-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func seedPair(t *testing.T, db *gorm.DB, matchStatus fulfillment.MatchStatus, deliverableStatus fulfillment.DeliverableStatus) {
	t.Helper()

	o := offer.Offer{ID: "o1", BrandID: "brand-1", Title: "Seeding run", Status: offer.StatusPublished}
	require.NoError(t, o.SetCountries([]string{"US"}))
	require.NoError(t, db.Create(&o).Error)
	require.NoError(t, db.Create(&fulfillment.Match{
		ID: "m1", OfferID: "o1", CreatorID: "creator-1", Status: matchStatus, CampaignCode: "SEED-1",
	}).Error)
	require.NoError(t, db.Create(&fulfillment.Deliverable{
		ID: "d1", MatchID: "m1", Status: deliverableStatus,
	}).Error)
}

func TestFavoriteEligible(t *testing.T) {
	t.Run("verified deliverable on live match", func(t *testing.T) {
		db := testutil.NewTestDB(t, &offer.Offer{}, &fulfillment.Match{}, &fulfillment.Deliverable{})
		seedPair(t, db, fulfillment.MatchClaimed, fulfillment.DeliverableVerified)

		ok, err := eligibility.FavoriteEligible(context.Background(), db, "brand-1", "creator-1")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("submitted is not enough", func(t *testing.T) {
		db := testutil.NewTestDB(t, &offer.Offer{}, &fulfillment.Match{}, &fulfillment.Deliverable{})
		seedPair(t, db, fulfillment.MatchClaimed, fulfillment.DeliverableSubmitted)

		ok, err := eligibility.FavoriteEligible(context.Background(), db, "brand-1", "creator-1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("revoked match does not count", func(t *testing.T) {
		db := testutil.NewTestDB(t, &offer.Offer{}, &fulfillment.Match{}, &fulfillment.Deliverable{})
		seedPair(t, db, fulfillment.MatchRevoked, fulfillment.DeliverableVerified)

		ok, err := eligibility.FavoriteEligible(context.Background(), db, "brand-1", "creator-1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("wrong pair", func(t *testing.T) {
		db := testutil.NewTestDB(t, &offer.Offer{}, &fulfillment.Match{}, &fulfillment.Deliverable{})
		seedPair(t, db, fulfillment.MatchClaimed, fulfillment.DeliverableVerified)

		ok, err := eligibility.FavoriteEligible(context.Background(), db, "brand-2", "creator-1")
		require.NoError(t, err)
		require.False(t, ok)
	})
}
