package favorite_test

import (
	"context"
	"errors"
	"testing"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/errutil"
	"seedloop-core/pkg/notify"
	"seedloop-core/services/favorite"
	"seedloop-core/services/fulfillment"
	"seedloop-core/services/offer"
	"seedloop-core/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	brandActor   = authctx.Context{UserID: "u1", BrandID: "brand-1"}
	creatorActor = authctx.Context{UserID: "u2", CreatorID: "creator-1"}
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, notify.Notification) {}

func newService(t *testing.T) (*favorite.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&offer.Offer{},
		&fulfillment.Match{}, &fulfillment.Deliverable{},
		&favorite.BrandFavorite{}, &favorite.CreatorFavorite{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := favorite.NewService(favorite.ServiceParams{
		DB:         db,
		Node:       node,
		Dispatcher: nopDispatcher{},
	})
	return svc, db
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Code)
}

// seedVerifiedPair records a completed collaboration between brand-1 and
// creator-1.
func seedVerifiedPair(t *testing.T, db *gorm.DB, deliverableStatus fulfillment.DeliverableStatus) {
	t.Helper()

	o := offer.Offer{ID: "o1", BrandID: "brand-1", Title: "run", Status: offer.StatusPublished}
	require.NoError(t, o.SetCountries([]string{"US"}))
	require.NoError(t, db.Create(&o).Error)
	require.NoError(t, db.Create(&fulfillment.Match{
		ID: "m1", OfferID: "o1", CreatorID: "creator-1", Status: fulfillment.MatchClaimed, CampaignCode: "SEED-1",
	}).Error)
	require.NoError(t, db.Create(&fulfillment.Deliverable{
		ID: "d1", MatchID: "m1", Status: deliverableStatus,
	}).Error)
}

func TestAddBrandFavoriteRequiresVerifiedDeliverable(t *testing.T) {
	svc, db := newService(t)
	seedVerifiedPair(t, db, fulfillment.DeliverableSubmitted)

	err := svc.AddBrandFavorite(context.Background(), brandActor, "creator-1")
	requireStatus(t, err, errutil.StatusConflict)
}

func TestAddBrandFavorite(t *testing.T) {
	svc, db := newService(t)
	seedVerifiedPair(t, db, fulfillment.DeliverableVerified)
	ctx := context.Background()

	require.NoError(t, svc.AddBrandFavorite(ctx, brandActor, "creator-1"))

	// Adding again is idempotent.
	require.NoError(t, svc.AddBrandFavorite(ctx, brandActor, "creator-1"))

	var count int64
	require.NoError(t, db.Model(&favorite.BrandFavorite{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRemoveBrandFavoriteUnconditional(t *testing.T) {
	svc, db := newService(t)
	seedVerifiedPair(t, db, fulfillment.DeliverableVerified)
	ctx := context.Background()

	require.NoError(t, svc.AddBrandFavorite(ctx, brandActor, "creator-1"))
	require.NoError(t, svc.RemoveBrandFavorite(ctx, brandActor, "creator-1"))

	var count int64
	require.NoError(t, db.Model(&favorite.BrandFavorite{}).Count(&count).Error)
	require.Zero(t, count)

	// Removing a non-existent favorite is not an error.
	require.NoError(t, svc.RemoveBrandFavorite(ctx, brandActor, "creator-1"))
}

func TestAddCreatorFavorite(t *testing.T) {
	svc, db := newService(t)
	seedVerifiedPair(t, db, fulfillment.DeliverableVerified)
	ctx := context.Background()

	require.NoError(t, svc.AddCreatorFavorite(ctx, creatorActor, "brand-1"))
	require.NoError(t, svc.AddCreatorFavorite(ctx, creatorActor, "brand-1"))

	var count int64
	require.NoError(t, db.Model(&favorite.CreatorFavorite{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	// No shared verified deliverable with this brand.
	err := svc.AddCreatorFavorite(ctx, creatorActor, "brand-9")
	requireStatus(t, err, errutil.StatusConflict)
}

func TestFavoriteRoleChecks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	err := svc.AddBrandFavorite(ctx, creatorActor, "creator-1")
	requireStatus(t, err, errutil.StatusForbidden)

	err = svc.AddCreatorFavorite(ctx, brandActor, "brand-1")
	requireStatus(t, err, errutil.StatusForbidden)
}
