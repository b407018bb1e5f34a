package fulfillment

import (
	"context"
	"time"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/config"
	"seedloop-core/pkg/errutil"
	"seedloop-core/pkg/notify"
	"seedloop-core/pkg/sequence"
	"seedloop-core/services/eligibility"
	"seedloop-core/services/offer"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	seq        sequence.Generator
	cfg        *config.Config
	dispatcher notify.Dispatcher
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Seq        sequence.Generator
	Config     *config.Config
	Dispatcher notify.Dispatcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		node:       p.Node,
		seq:        p.Seq,
		cfg:        p.Config,
		dispatcher: p.Dispatcher,
	}
}

// Claim creates a match (and its DUE deliverable) for a creator against a
// published offer. Eligibility gates run inside the same transaction as the
// insert so two concurrent claims can't both squeeze into the last slot.
func (s *Service) Claim(ctx context.Context, actor authctx.Context, offerID string) (*Match, *Deliverable, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("offer_id", offerID),
		zap.String("creator_id", actor.CreatorID),
	)

	if err := actor.RequireCreator(); err != nil {
		return nil, nil, err
	}

	var o offer.Offer
	if err := s.db.WithContext(ctx).First(&o, "id = ?", offerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, errutil.NotFound("offer not found")
		}
		return nil, nil, errutil.Internal("failed to load offer", errutil.WithErr(err))
	}

	if o.Status != offer.StatusPublished {
		return nil, nil, errutil.Conflict("offer is not open for claims")
	}
	if !o.AllowsCountry(actor.CountryCode) {
		return nil, nil, errutil.Conflict("offer is not available in your country")
	}

	// Minted outside the transaction; an abandoned code is just a gap in the
	// sequence.
	code, err := s.seq.NextClaimCode(ctx, o.BrandID)
	if err != nil {
		return nil, nil, errutil.Internal("failed to mint claim code", errutil.WithErr(err))
	}

	m := Match{
		ID:           s.node.Generate().String(),
		OfferID:      o.ID,
		CreatorID:    actor.CreatorID,
		CampaignCode: code,
	}
	d := Deliverable{
		ID:     s.node.Generate().String(),
		Status: DeliverableDue,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claims against one offer serialize on its row write lock, held
		// until commit on every supported dialect. The counts below then
		// read state no concurrent claim can still change.
		touch := tx.Model(&offer.Offer{}).
			Where("id = ?", o.ID).
			Update("updated_at", time.Now().UTC())
		if touch.Error != nil {
			return touch.Error
		}
		if touch.RowsAffected == 0 {
			return errutil.NotFound("offer not found")
		}

		var liveForOffer int64
		if err := tx.Model(&Match{}).
			Where("offer_id = ? AND status IN ?", o.ID, liveMatchStatuses).
			Count(&liveForOffer).Error; err != nil {
			return err
		}
		if liveForOffer >= int64(o.MaxClaims) {
			return errutil.Conflict("offer has reached its claim limit")
		}

		var existing int64
		if err := tx.Model(&Match{}).
			Where("offer_id = ? AND creator_id = ? AND status IN ?", o.ID, actor.CreatorID, liveMatchStatuses).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errutil.Conflict("offer already claimed")
		}

		strikes, err := eligibility.ActiveStrikeCount(ctx, tx, actor.CreatorID)
		if err != nil {
			return err
		}

		decision := eligibility.AcceptanceDecision(
			o.Threshold(s.cfg.Fulfillment.DefaultThreshold),
			o.AutoAcceptAboveThreshold,
			actor.FollowersCount,
		)
		// Auto-accept is suspended once a creator carries too many strikes.
		if strikes > s.cfg.Fulfillment.MaxActiveStrikes {
			decision = eligibility.PendingApproval
		}

		m.Status = MatchPendingApproval
		if decision == eligibility.AutoAccept {
			now := time.Now().UTC()
			m.Status = MatchAccepted
			m.AcceptedAt = &now
		}

		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		d.MatchID = m.ID
		return tx.Create(&d).Error
	})
	if err != nil {
		if _, ok := err.(errutil.BaseError); ok {
			return nil, nil, err
		}
		zapLog.Error("claim transaction failed", zap.Error(err))
		return nil, nil, errutil.Internal("failed to claim offer", errutil.WithErr(err))
	}

	zapLog.Info("offer claimed", zap.String("match_id", m.ID), zap.String("status", string(m.Status)))

	s.dispatcher.Dispatch(ctx, notify.Notification{
		Channel:   notify.ChannelEmail,
		Recipient: o.BrandID,
		Template:  "match.claimed",
		Data:      map[string]string{"campaign_code": m.CampaignCode},
	})

	return &m, &d, nil
}

// AcceptMatch moves a pending match to ACCEPTED on behalf of the owning
// brand.
func (s *Service) AcceptMatch(ctx context.Context, actor authctx.Context, matchID string) (*Match, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}

	m, _, err := s.ownedMatch(ctx, s.db, actor, matchID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND status = ?", m.ID, MatchPendingApproval).
		Updates(map[string]interface{}{"status": MatchAccepted, "accepted_at": now})
	if res.Error != nil {
		return nil, errutil.Internal("failed to accept match", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("only a pending match can be accepted")
	}

	m.Status = MatchAccepted
	m.AcceptedAt = &now

	s.dispatcher.Dispatch(ctx, notify.Notification{
		Channel:   notify.ChannelEmail,
		Recipient: m.CreatorID,
		Template:  "match.accepted",
		Data:      map[string]string{"campaign_code": m.CampaignCode},
	})

	return m, nil
}

// RejectMatch revokes a pending or accepted match. Rejecting an already
// terminal match is an idempotent no-op that reports the current status, and
// a rejected match never earns the creator a strike.
func (s *Service) RejectMatch(ctx context.Context, actor authctx.Context, matchID string) (*Match, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}

	m, _, err := s.ownedMatch(ctx, s.db, actor, matchID)
	if err != nil {
		return nil, err
	}

	if m.Terminal() {
		return m, nil
	}
	if m.Status == MatchClaimed {
		return nil, errutil.Conflict("a shipped match can no longer be rejected")
	}

	res := s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND status IN ?", m.ID, []MatchStatus{MatchPendingApproval, MatchAccepted}).
		Update("status", MatchRevoked)
	if res.Error != nil {
		return nil, errutil.Internal("failed to reject match", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		// Lost a race against another transition; report what's there now.
		return s.reload(ctx, m.ID)
	}

	m.Status = MatchRevoked
	return m, nil
}

// CancelMatch is the creator-side terminal exit before shipment.
func (s *Service) CancelMatch(ctx context.Context, actor authctx.Context, matchID string) (*Match, error) {
	if err := actor.RequireCreator(); err != nil {
		return nil, err
	}

	var m Match
	if err := s.db.WithContext(ctx).
		First(&m, "id = ? AND creator_id = ?", matchID, actor.CreatorID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("match not found")
		}
		return nil, errutil.Internal("failed to load match", errutil.WithErr(err))
	}

	if m.Terminal() {
		return &m, nil
	}
	if m.Status == MatchClaimed {
		return nil, errutil.Conflict("a shipped match can no longer be canceled")
	}

	res := s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND status IN ?", m.ID, []MatchStatus{MatchPendingApproval, MatchAccepted}).
		Update("status", MatchCanceled)
	if res.Error != nil {
		return nil, errutil.Internal("failed to cancel match", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return s.reload(ctx, m.ID)
	}

	m.Status = MatchCanceled
	return &m, nil
}

// MarkShipped records product shipment, advancing the match to CLAIMED and
// stamping the deliverable deadline from the offer's window.
func (s *Service) MarkShipped(ctx context.Context, actor authctx.Context, matchID string) (*Match, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}

	m, o, err := s.ownedMatch(ctx, s.db, actor, matchID)
	if err != nil {
		return nil, err
	}

	dueAt := time.Now().UTC().AddDate(0, 0, o.DeadlineDays)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Match{}).
			Where("id = ? AND status = ?", m.ID, MatchAccepted).
			Update("status", MatchClaimed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("only an accepted match can be marked shipped")
		}
		return tx.Model(&Deliverable{}).
			Where("match_id = ?", m.ID).
			Update("due_at", dueAt).Error
	})
	if err != nil {
		if _, ok := err.(errutil.BaseError); ok {
			return nil, err
		}
		return nil, errutil.Internal("failed to mark match shipped", errutil.WithErr(err))
	}

	m.Status = MatchClaimed
	return m, nil
}

// SubmitDeliverable records the creator's content submission.
func (s *Service) SubmitDeliverable(ctx context.Context, actor authctx.Context, deliverableID, permalink, notes string) (*Deliverable, error) {
	if err := actor.RequireCreator(); err != nil {
		return nil, err
	}
	if permalink == "" {
		return nil, errutil.ValidationFailed("permalink is required")
	}

	var d Deliverable
	err := s.db.WithContext(ctx).
		Joins("JOIN matches ON matches.id = deliverables.match_id").
		Where("deliverables.id = ? AND matches.creator_id = ?", deliverableID, actor.CreatorID).
		First(&d).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("deliverable not found")
		}
		return nil, errutil.Internal("failed to load deliverable", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Deliverable{}).
		Where("id = ? AND status = ?", d.ID, DeliverableDue).
		Updates(map[string]interface{}{
			"status":              DeliverableSubmitted,
			"submitted_permalink": permalink,
			"submitted_notes":     notes,
			"submitted_at":        now,
		})
	if res.Error != nil {
		return nil, errutil.Internal("failed to submit deliverable", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("deliverable is not awaiting submission")
	}

	d.Status = DeliverableSubmitted
	d.SubmittedPermalink = &permalink
	d.SubmittedNotes = &notes
	d.SubmittedAt = &now
	return &d, nil
}

// ForgiveStrike clears a strike, freeing its per-match slot. The decision to
// forgive comes from outside the core (support tooling).
func (s *Service) ForgiveStrike(ctx context.Context, strikeID string) error {
	res := s.db.WithContext(ctx).Model(&Strike{}).
		Where("id = ? AND forgiven_at IS NULL", strikeID).
		Update("forgiven_at", time.Now().UTC())
	if res.Error != nil {
		return errutil.Internal("failed to forgive strike", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("strike not found or already forgiven")
	}
	return nil
}

// ownedMatch loads a match plus its offer, scoped to the caller's brand.
// Missing and unowned are indistinguishable to the caller.
func (s *Service) ownedMatch(ctx context.Context, db *gorm.DB, actor authctx.Context, matchID string) (*Match, *offer.Offer, error) {
	var m Match
	if err := db.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, errutil.NotFound("match not found")
		}
		return nil, nil, errutil.Internal("failed to load match", errutil.WithErr(err))
	}

	var o offer.Offer
	if err := db.WithContext(ctx).
		First(&o, "id = ? AND brand_id = ?", m.OfferID, actor.BrandID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, errutil.NotFound("match not found")
		}
		return nil, nil, errutil.Internal("failed to load offer", errutil.WithErr(err))
	}

	return &m, &o, nil
}

func (s *Service) reload(ctx context.Context, matchID string) (*Match, error) {
	var m Match
	if err := s.db.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		return nil, errutil.Internal("failed to reload match", errutil.WithErr(err))
	}
	return &m, nil
}
