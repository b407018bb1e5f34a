package offer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/db/pagination"
	"seedloop-core/pkg/errutil"
	"seedloop-core/services/billing"
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
	creatorActor = authctx.Context{UserID: "u2", CreatorID: "creator-1", FollowersCount: 5000, CountryCode: "US"}
)

func newService(t *testing.T) (*offer.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&offer.Offer{}, &offer.Product{},
		&billing.Subscription{},
		&fulfillment.Match{}, &fulfillment.Deliverable{}, &fulfillment.Strike{},
		&favorite.BrandFavorite{}, &favorite.CreatorFavorite{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := offer.NewService(offer.ServiceParams{
		DB:      db,
		Node:    node,
		Billing: billing.NewService(billing.ServiceParams{DB: db}),
	})
	return svc, db
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Code)
}

func validInput() offer.CreateOfferInput {
	return offer.CreateOfferInput{
		Title:            "Summer seeding run",
		CountriesAllowed: []string{"US", "CA"},
		MaxClaims:        10,
		DeadlineDays:     14,
	}
}

func TestCreateOffer(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreateOffer(ctx, brandActor, validInput(), []offer.ProductInput{
		{ExternalRef: "sku-1", Title: "Serum", ValueCents: 4900, CurrencyCode: "USD"},
	})
	require.NoError(t, err)
	require.Equal(t, offer.StatusDraft, o.Status)
	require.Equal(t, []string{"US", "CA"}, o.Countries())
	require.Len(t, o.Products, 1)
	require.NotEmpty(t, o.Products[0].ID)
}

func TestCreateOfferRequiresCountries(t *testing.T) {
	svc, _ := newService(t)

	in := validInput()
	in.CountriesAllowed = nil

	_, err := svc.CreateOffer(context.Background(), brandActor, in, nil)
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestCreateOfferRequiresBrand(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateOffer(context.Background(), creatorActor, validInput(), nil)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestPublishOffer(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreateOffer(ctx, brandActor, validInput(), nil)
	require.NoError(t, err)

	o, err = svc.PublishOffer(ctx, brandActor, o.ID)
	require.NoError(t, err)
	require.Equal(t, offer.StatusPublished, o.Status)

	_, err = svc.PublishOffer(ctx, brandActor, o.ID)
	requireStatus(t, err, errutil.StatusConflict)
}

func TestArchiveOfferFromAnyState(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreateOffer(ctx, brandActor, validInput(), nil)
	require.NoError(t, err)

	o, err = svc.ArchiveOffer(ctx, brandActor, o.ID)
	require.NoError(t, err)
	require.Equal(t, offer.StatusArchived, o.Status)
}

func TestGetOfferHidesOtherBrands(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreateOffer(ctx, brandActor, validInput(), nil)
	require.NoError(t, err)

	other := authctx.Context{UserID: "u9", BrandID: "brand-9"}
	_, err = svc.GetOffer(ctx, other, o.ID)
	requireStatus(t, err, errutil.StatusNotFound)

	_, err = svc.GetOffer(ctx, brandActor, "missing")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestDuplicateOfferRequiresSubscription(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreateOffer(ctx, brandActor, validInput(), nil)
	require.NoError(t, err)

	_, err = svc.DuplicateOffer(ctx, brandActor, o.ID)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestDuplicateOffer(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&billing.Subscription{
		ID:               "sub-1",
		SubjectType:      billing.SubjectBrand,
		SubjectID:        "brand-1",
		Status:           billing.SubscriptionActive,
		CurrentPeriodEnd: time.Now().UTC().Add(30 * 24 * time.Hour),
	}).Error)

	src, err := svc.CreateOffer(ctx, brandActor, validInput(), []offer.ProductInput{
		{ExternalRef: "sku-1", Title: "Serum", ValueCents: 4900, CurrencyCode: "USD"},
		{ExternalRef: "sku-2", Title: "Cleanser", ValueCents: 2500, CurrencyCode: "USD"},
		{ExternalRef: "sku-3", Title: "Mask", ValueCents: 1800, CurrencyCode: "USD"},
	})
	require.NoError(t, err)

	dup, err := svc.DuplicateOffer(ctx, brandActor, src.ID)
	require.NoError(t, err)

	require.NotEqual(t, src.ID, dup.ID)
	require.Equal(t, offer.StatusPublished, dup.Status)
	require.Equal(t, src.Title, dup.Title)
	require.Len(t, dup.Products, 3)
	for i, p := range dup.Products {
		require.NotEqual(t, src.Products[i].ID, p.ID)
		require.Equal(t, dup.ID, p.OfferID)
		require.Equal(t, src.Products[i].Title, p.Title)
	}

	// The source row is untouched.
	reloaded, err := svc.GetOffer(ctx, brandActor, src.ID)
	require.NoError(t, err)
	require.Equal(t, offer.StatusDraft, reloaded.Status)
	require.Len(t, reloaded.Products, 3)
}

func TestDuplicateExpiredSubscription(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&billing.Subscription{
		ID:               "sub-1",
		SubjectType:      billing.SubjectBrand,
		SubjectID:        "brand-1",
		Status:           billing.SubscriptionActive,
		CurrentPeriodEnd: time.Now().UTC().Add(-time.Hour),
	}).Error)

	o, err := svc.CreateOffer(ctx, brandActor, validInput(), nil)
	require.NoError(t, err)

	_, err = svc.DuplicateOffer(ctx, brandActor, o.ID)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestListOffersPagination(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateOffer(ctx, brandActor, validInput(), nil)
		require.NoError(t, err)
	}

	page1, info, err := svc.ListOffers(ctx, brandActor, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.True(t, info.HasMore)

	page2, info, err := svc.ListOffers(ctx, brandActor, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.False(t, info.HasMore)
	require.NotEqual(t, page1[0].ID, page2[0].ID)
	require.NotEqual(t, page1[1].ID, page2[0].ID)
}

func TestPurgeBrand(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	seedGraph := func(brandID, creatorID, suffix string) {
		o := offer.Offer{ID: "o-" + suffix, BrandID: brandID, Title: "run", Status: offer.StatusPublished}
		require.NoError(t, o.SetCountries([]string{"US"}))
		require.NoError(t, db.Create(&o).Error)
		require.NoError(t, db.Create(&offer.Product{ID: "p-" + suffix, OfferID: o.ID, Title: "item"}).Error)
		require.NoError(t, db.Create(&fulfillment.Match{ID: "m-" + suffix, OfferID: o.ID, CreatorID: creatorID, Status: fulfillment.MatchClaimed, CampaignCode: "SEED-" + suffix}).Error)
		require.NoError(t, db.Create(&fulfillment.Deliverable{ID: "d-" + suffix, MatchID: "m-" + suffix, Status: fulfillment.DeliverableFailed}).Error)
		require.NoError(t, db.Create(&fulfillment.Strike{ID: "s-" + suffix, CreatorID: creatorID, MatchID: "m-" + suffix, Reason: "late"}).Error)
		require.NoError(t, db.Create(&favorite.BrandFavorite{ID: "bf-" + suffix, BrandID: brandID, CreatorID: creatorID}).Error)
		require.NoError(t, db.Create(&favorite.CreatorFavorite{ID: "cf-" + suffix, CreatorID: creatorID, BrandID: brandID}).Error)
	}

	seedGraph("brand-1", "creator-1", "a")
	seedGraph("brand-2", "creator-2", "b")

	require.NoError(t, svc.PurgeBrand(ctx, "brand-1"))

	tables := []string{"offers", "products", "matches", "deliverables", "strikes", "brand_favorites", "creator_favorites"}
	for _, table := range tables {
		var count int64
		require.NoError(t, db.Table(table).Count(&count).Error)
		require.Equal(t, int64(1), count, "table %s should keep only brand-2 rows", table)
	}

	var survivor offer.Offer
	require.NoError(t, db.First(&survivor, "id = ?", "o-b").Error)
	require.Equal(t, "brand-2", survivor.BrandID)
}
