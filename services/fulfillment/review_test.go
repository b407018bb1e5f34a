package fulfillment_test

import (
	"context"
	"testing"

	"seedloop-core/pkg/errutil"
	"seedloop-core/services/fulfillment"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// shipAndSubmit walks a fresh claim through shipment and submission so review
// tests start from a SUBMITTED deliverable.
func shipAndSubmit(t *testing.T, svc *fulfillment.Service, db *gorm.DB, opts ...offerOption) *fulfillment.Deliverable {
	t.Helper()
	ctx := context.Background()

	opts = append([]offerOption{withAutoAccept(1000)}, opts...)
	seedOffer(t, db, "o1", opts...)

	m, d, err := svc.Claim(ctx, creatorActor, "o1")
	require.NoError(t, err)
	_, err = svc.MarkShipped(ctx, brandActor, m.ID)
	require.NoError(t, err)
	d, err = svc.SubmitDeliverable(ctx, creatorActor, d.ID, "https://example.com/post/1", "draft")
	require.NoError(t, err)

	return d
}

func TestReviewVerify(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db)

	out, err := svc.Review(context.Background(), brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewVerify,
		DeliverableID: d.ID,
	})
	require.NoError(t, err)
	require.Equal(t, fulfillment.DeliverableVerified, out.Status)
	require.NotNil(t, out.VerifiedAt)
	require.NotNil(t, out.VerifiedPermalink)
	require.Equal(t, "https://example.com/post/1", *out.VerifiedPermalink)
	require.NotNil(t, out.ReviewedBy)
	require.Equal(t, brandActor.UserID, *out.ReviewedBy)
	// No usage rights on a plain offer.
	require.Nil(t, out.UsageRightsGrantedAt)
}

func TestReviewVerifyGrantsUsageRights(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db, withUsageRights("paid ads 90d"))

	out, err := svc.Review(context.Background(), brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewVerify,
		DeliverableID: d.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, out.UsageRightsGrantedAt)
	require.NotNil(t, out.UsageRightsScope)
	require.Equal(t, "paid ads 90d", *out.UsageRightsScope)
}

func TestReviewVerifyRequiresSubmitted(t *testing.T) {
	svc, db := newService(t)
	seedOffer(t, db, "o1", withAutoAccept(1000))

	_, d, err := svc.Claim(context.Background(), creatorActor, "o1")
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewVerify,
		DeliverableID: d.ID,
	})
	requireStatus(t, err, errutil.StatusConflict)
}

func TestReviewFailWritesOneStrike(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db)
	ctx := context.Background()

	out, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewFail,
		DeliverableID: d.ID,
		Reason:        "Low quality",
	})
	require.NoError(t, err)
	require.Equal(t, fulfillment.DeliverableFailed, out.Status)
	require.NotNil(t, out.FailureReason)
	require.Equal(t, "Low quality", *out.FailureReason)

	// Every submission field is gone.
	require.Nil(t, out.SubmittedPermalink)
	require.Nil(t, out.SubmittedNotes)
	require.Nil(t, out.SubmittedAt)
	require.Nil(t, out.VerifiedPermalink)
	require.Nil(t, out.VerifiedAt)
	require.Nil(t, out.UsageRightsGrantedAt)
	require.Nil(t, out.UsageRightsScope)

	var strikes []fulfillment.Strike
	require.NoError(t, db.Find(&strikes).Error)
	require.Len(t, strikes, 1)
	require.Equal(t, creatorActor.CreatorID, strikes[0].CreatorID)
	require.Equal(t, d.MatchID, strikes[0].MatchID)
	require.Equal(t, "Low quality", strikes[0].Reason)

	// A second fail is idempotent: no error, still one strike.
	out, err = svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewFail,
		DeliverableID: d.ID,
		Reason:        "Low quality again",
	})
	require.NoError(t, err)
	require.Equal(t, fulfillment.DeliverableFailed, out.Status)

	var count int64
	require.NoError(t, db.Model(&fulfillment.Strike{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestReviewFailConcurrentSingleStrike(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db)
	ctx := context.Background()

	// The single-connection test store serializes the transactions; the
	// loser goes through the idempotent already-FAILED path and must not
	// write a second strike.
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
				Kind:          fulfillment.ReviewFail,
				DeliverableID: d.ID,
				Reason:        "Low quality",
			})
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}

	var count int64
	require.NoError(t, db.Model(&fulfillment.Strike{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestReviewFailNeverSubmittedDeliverable(t *testing.T) {
	svc, db := newService(t)
	seedOffer(t, db, "o1")
	ctx := context.Background()

	// The creator claims and then goes dark; the brand can still fail the
	// DUE deliverable and the strike lands.
	_, d, err := svc.Claim(ctx, creatorActor, "o1")
	require.NoError(t, err)

	out, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewFail,
		DeliverableID: d.ID,
		Reason:        "Low quality",
	})
	require.NoError(t, err)
	require.Equal(t, fulfillment.DeliverableFailed, out.Status)

	var count int64
	require.NoError(t, db.Model(&fulfillment.Strike{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	// Second fail on the same deliverable: nothing changes.
	_, err = svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewFail,
		DeliverableID: d.ID,
		Reason:        "Low quality",
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&fulfillment.Strike{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestReviewFailAfterForgivenessStrikesAgain(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db)
	ctx := context.Background()

	_, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind: fulfillment.ReviewFail, DeliverableID: d.ID, Reason: "Low quality",
	})
	require.NoError(t, err)

	var strike fulfillment.Strike
	require.NoError(t, db.First(&strike).Error)
	require.NoError(t, svc.ForgiveStrike(ctx, strike.ID))

	// Reopen, resubmit, fail again: the forgiven strike no longer occupies
	// the per-match slot.
	_, err = svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind: fulfillment.ReviewRequestChanges, DeliverableID: d.ID, Reason: "redo",
	})
	requireStatus(t, err, errutil.StatusConflict) // FAILED can't be reopened

	require.NoError(t, db.Model(&fulfillment.Deliverable{}).
		Where("id = ?", d.ID).
		Update("status", fulfillment.DeliverableDue).Error)
	_, err = svc.SubmitDeliverable(ctx, creatorActor, d.ID, "https://example.com/post/2", "")
	require.NoError(t, err)

	_, err = svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind: fulfillment.ReviewFail, DeliverableID: d.ID, Reason: "still low quality",
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&fulfillment.Strike{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestReviewRequestChangesClearsEverything(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db, withUsageRights("paid ads 90d"))
	ctx := context.Background()

	_, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind: fulfillment.ReviewVerify, DeliverableID: d.ID,
	})
	require.NoError(t, err)

	out, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind:          fulfillment.ReviewRequestChanges,
		DeliverableID: d.ID,
		Reason:        "wrong product shown",
	})
	require.NoError(t, err)
	require.Equal(t, fulfillment.DeliverableDue, out.Status)

	require.Nil(t, out.SubmittedPermalink)
	require.Nil(t, out.SubmittedNotes)
	require.Nil(t, out.SubmittedAt)
	require.Nil(t, out.VerifiedPermalink)
	require.Nil(t, out.VerifiedAt)
	require.Nil(t, out.UsageRightsGrantedAt)
	require.Nil(t, out.UsageRightsScope)

	// Reopening is not a penalty.
	var strikes int64
	require.NoError(t, db.Model(&fulfillment.Strike{}).Count(&strikes).Error)
	require.Zero(t, strikes)

	// The creator can resubmit.
	_, err = svc.SubmitDeliverable(ctx, creatorActor, d.ID, "https://example.com/post/2", "")
	require.NoError(t, err)
}

func TestReviewValidation(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db)
	ctx := context.Background()

	_, err := svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind: fulfillment.ReviewFail, DeliverableID: d.ID,
	})
	requireStatus(t, err, errutil.StatusValidationFailed)

	_, err = svc.Review(ctx, brandActor, fulfillment.ReviewCommand{
		Kind: "APPROVE_ISH", DeliverableID: d.ID,
	})
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestReviewHidesOtherBrands(t *testing.T) {
	svc, db := newService(t)
	d := shipAndSubmit(t, svc, db)

	other := brandActor
	other.BrandID = "brand-9"
	_, err := svc.Review(context.Background(), other, fulfillment.ReviewCommand{
		Kind: fulfillment.ReviewVerify, DeliverableID: d.ID,
	})
	requireStatus(t, err, errutil.StatusNotFound)
}
