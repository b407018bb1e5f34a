package fulfillment

import (
	"context"
	"time"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/errutil"
	"seedloop-core/pkg/notify"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReviewKind tags a brand review action. Keeping the actions as a closed
// command set means every legality rule for the Match x Deliverable aggregate
// lives in Review, not spread across handlers.
type ReviewKind string

const (
	ReviewVerify         ReviewKind = "VERIFY"
	ReviewFail           ReviewKind = "FAIL"
	ReviewRequestChanges ReviewKind = "REQUEST_CHANGES"
)

// ReviewCommand is one review action against a deliverable.
type ReviewCommand struct {
	Kind          ReviewKind
	DeliverableID string
	// Reason is required for FAIL and REQUEST_CHANGES.
	Reason string
	// Permalink optionally overrides the submitted permalink on VERIFY.
	Permalink string
}

// clearedSubmissionFields nulls every submission, verification and
// usage-rights column. Applied on FAIL and REQUEST_CHANGES so no stale
// verification data survives a rejection.
var clearedSubmissionFields = map[string]interface{}{
	"submitted_permalink":     nil,
	"submitted_notes":         nil,
	"submitted_at":            nil,
	"verified_permalink":      nil,
	"verified_at":             nil,
	"usage_rights_granted_at": nil,
	"usage_rights_scope":      nil,
}

// Review applies one review command on behalf of the owning brand. All row
// mutations, including the FAIL strike insert, happen in a single
// transaction.
func (s *Service) Review(ctx context.Context, actor authctx.Context, cmd ReviewCommand) (*Deliverable, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}

	switch cmd.Kind {
	case ReviewVerify:
	case ReviewFail, ReviewRequestChanges:
		if cmd.Reason == "" {
			return nil, errutil.ValidationFailed("reason is required")
		}
	default:
		return nil, errutil.ValidationFailed("unknown review action")
	}

	var out *Deliverable
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, m, err := s.ownedDeliverable(ctx, tx, actor, cmd.DeliverableID)
		if err != nil {
			return err
		}

		switch cmd.Kind {
		case ReviewVerify:
			out, err = s.applyVerify(ctx, tx, actor, cmd, d, m)
		case ReviewFail:
			out, err = s.applyFail(ctx, tx, actor, cmd, d, m)
		case ReviewRequestChanges:
			out, err = s.applyRequestChanges(ctx, tx, actor, cmd, d)
		}
		return err
	})
	if err != nil {
		if _, ok := err.(errutil.BaseError); ok {
			return nil, err
		}
		zap.L().Error("review transaction failed",
			zap.String("kind", string(cmd.Kind)),
			zap.String("deliverable_id", cmd.DeliverableID),
			zap.Error(err),
		)
		return nil, errutil.Internal("failed to review deliverable", errutil.WithErr(err))
	}

	s.notifyReview(ctx, cmd.Kind, out)

	return out, nil
}

func (s *Service) applyVerify(ctx context.Context, tx *gorm.DB, actor authctx.Context, cmd ReviewCommand, d *Deliverable, m *Match) (*Deliverable, error) {
	now := time.Now().UTC()

	permalink := cmd.Permalink
	if permalink == "" && d.SubmittedPermalink != nil {
		permalink = *d.SubmittedPermalink
	}

	updates := map[string]interface{}{
		"status":             DeliverableVerified,
		"verified_permalink": permalink,
		"verified_at":        now,
		"reviewed_by":        actor.UserID,
	}

	var o struct {
		UsageRightsRequired bool
		UsageRightsScope    string
	}
	if err := tx.Table("offers").
		Select("usage_rights_required", "usage_rights_scope").
		Where("id = ?", m.OfferID).
		Scan(&o).Error; err != nil {
		return nil, err
	}
	if o.UsageRightsRequired {
		updates["usage_rights_granted_at"] = now
		updates["usage_rights_scope"] = o.UsageRightsScope
	}

	res := tx.Model(&Deliverable{}).
		Where("id = ? AND status = ?", d.ID, DeliverableSubmitted).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("only a submitted deliverable can be verified")
	}

	return s.reloadDeliverable(ctx, tx, d.ID)
}

// applyFail marks the deliverable FAILED and writes the creator's strike.
// The guarded update is the serialization point: of N concurrent fail
// requests only one flips the status, and only that one reaches the strike
// insert. The check-then-insert for the strike runs inside the same
// transaction, so a second strike can never appear for the same match.
func (s *Service) applyFail(ctx context.Context, tx *gorm.DB, actor authctx.Context, cmd ReviewCommand, d *Deliverable, m *Match) (*Deliverable, error) {
	updates := map[string]interface{}{
		"status":         DeliverableFailed,
		"failure_reason": cmd.Reason,
		"reviewed_by":    actor.UserID,
	}
	for k, v := range clearedSubmissionFields {
		updates[k] = v
	}

	res := tx.Model(&Deliverable{}).
		Where("id = ? AND status <> ?", d.ID, DeliverableFailed).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Already failed: idempotent, and no second strike.
		return s.reloadDeliverable(ctx, tx, d.ID)
	}

	var existing int64
	if err := tx.Model(&Strike{}).
		Where("match_id = ? AND forgiven_at IS NULL", m.ID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing == 0 {
		strike := Strike{
			ID:        s.node.Generate().String(),
			CreatorID: m.CreatorID,
			MatchID:   m.ID,
			Reason:    cmd.Reason,
		}
		if err := tx.Create(&strike).Error; err != nil {
			return nil, err
		}
	}

	return s.reloadDeliverable(ctx, tx, d.ID)
}

// applyRequestChanges reopens a submitted or verified deliverable. This is
// the explicit undo path: the reviewer must never see stale verified content
// afterwards, so every submission field is erased.
func (s *Service) applyRequestChanges(ctx context.Context, tx *gorm.DB, actor authctx.Context, cmd ReviewCommand, d *Deliverable) (*Deliverable, error) {
	updates := map[string]interface{}{
		"status":         DeliverableDue,
		"failure_reason": cmd.Reason,
		"reviewed_by":    actor.UserID,
	}
	for k, v := range clearedSubmissionFields {
		updates[k] = v
	}

	res := tx.Model(&Deliverable{}).
		Where("id = ? AND status IN ?", d.ID, []DeliverableStatus{DeliverableSubmitted, DeliverableVerified}).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("only a submitted or verified deliverable can be reopened")
	}

	return s.reloadDeliverable(ctx, tx, d.ID)
}

// ownedDeliverable resolves a deliverable through its match to the caller's
// brand. Missing and unowned produce the same NOT_FOUND.
func (s *Service) ownedDeliverable(ctx context.Context, tx *gorm.DB, actor authctx.Context, deliverableID string) (*Deliverable, *Match, error) {
	var d Deliverable
	if err := tx.WithContext(ctx).First(&d, "id = ?", deliverableID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, errutil.NotFound("deliverable not found")
		}
		return nil, nil, err
	}

	var m Match
	err := tx.WithContext(ctx).
		Joins("JOIN offers ON offers.id = matches.offer_id").
		Where("matches.id = ? AND offers.brand_id = ?", d.MatchID, actor.BrandID).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, errutil.NotFound("deliverable not found")
		}
		return nil, nil, err
	}

	return &d, &m, nil
}

func (s *Service) reloadDeliverable(ctx context.Context, tx *gorm.DB, id string) (*Deliverable, error) {
	var d Deliverable
	if err := tx.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) notifyReview(ctx context.Context, kind ReviewKind, d *Deliverable) {
	if d == nil {
		return
	}

	template := ""
	switch kind {
	case ReviewVerify:
		template = "deliverable.verified"
	case ReviewFail:
		template = "deliverable.failed"
	case ReviewRequestChanges:
		template = "deliverable.changes_requested"
	}

	var m Match
	if err := s.db.WithContext(ctx).First(&m, "id = ?", d.MatchID).Error; err != nil {
		zap.L().Warn("failed to resolve match for review notification", zap.Error(err))
		return
	}

	s.dispatcher.Dispatch(ctx, notify.Notification{
		Channel:   notify.ChannelEmail,
		Recipient: m.CreatorID,
		Template:  template,
		Data:      map[string]string{"campaign_code": m.CampaignCode},
	})
}
