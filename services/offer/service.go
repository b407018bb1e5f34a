package offer

import (
	"context"
	"time"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/db/option"
	"seedloop-core/pkg/db/pagination"
	"seedloop-core/pkg/errutil"
	"seedloop-core/pkg/repository"
	"seedloop-core/services/billing"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// zeroTime resets autoCreateTime/autoUpdateTime stamps on copied rows.
var zeroTime time.Time

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	billing *billing.Service

	offers repository.Repository[Offer]
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Billing *billing.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		billing: p.Billing,
		offers:  repository.ProvideStore[Offer](p.DB),
	}
}

type CreateOfferInput struct {
	Title                    string
	ContentTemplate          string
	CountriesAllowed         []string
	MaxClaims                int
	DeadlineDays             int
	DeliverableType          DeliverableType
	UsageRightsRequired      bool
	UsageRightsScope         string
	AcceptanceThreshold      *int64
	AutoAcceptAboveThreshold bool
}

type ProductInput struct {
	ExternalRef  string
	Title        string
	ValueCents   int64
	CurrencyCode string
}

// CreateOffer records a new DRAFT offer with its products.
func (s *Service) CreateOffer(ctx context.Context, actor authctx.Context, in CreateOfferInput, products []ProductInput) (*Offer, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, errutil.ValidationFailed("title is required")
	}
	if len(in.CountriesAllowed) == 0 {
		return nil, errutil.ValidationFailed("countries_allowed must be non-empty")
	}
	if in.MaxClaims <= 0 {
		in.MaxClaims = 50
	}
	if in.DeadlineDays <= 0 {
		in.DeadlineDays = 14
	}
	if in.DeliverableType == "" {
		in.DeliverableType = DeliverablePost
	}

	o := Offer{
		ID:                       s.node.Generate().String(),
		BrandID:                  actor.BrandID,
		Title:                    in.Title,
		ContentTemplate:          in.ContentTemplate,
		Status:                   StatusDraft,
		MaxClaims:                in.MaxClaims,
		DeadlineDays:             in.DeadlineDays,
		DeliverableType:          in.DeliverableType,
		UsageRightsRequired:      in.UsageRightsRequired,
		UsageRightsScope:         in.UsageRightsScope,
		AcceptanceThreshold:      in.AcceptanceThreshold,
		AutoAcceptAboveThreshold: in.AutoAcceptAboveThreshold,
	}
	if err := o.SetCountries(in.CountriesAllowed); err != nil {
		return nil, errutil.ValidationFailed("invalid countries_allowed", errutil.WithErr(err))
	}

	for _, p := range products {
		o.Products = append(o.Products, Product{
			ID:           s.node.Generate().String(),
			ExternalRef:  p.ExternalRef,
			Title:        p.Title,
			ValueCents:   p.ValueCents,
			CurrencyCode: p.CurrencyCode,
		})
	}

	if err := s.db.WithContext(ctx).Create(&o).Error; err != nil {
		zap.L().Error("failed to create offer", zap.Error(err))
		return nil, errutil.Internal("failed to create offer", errutil.WithErr(err))
	}

	return &o, nil
}

// PublishOffer moves a DRAFT offer to PUBLISHED, making it claimable.
func (s *Service) PublishOffer(ctx context.Context, actor authctx.Context, offerID string) (*Offer, error) {
	return s.transition(ctx, actor, offerID, StatusDraft, StatusPublished)
}

// ArchiveOffer retires an offer from circulation. Archiving is allowed from
// any state; existing matches keep running.
func (s *Service) ArchiveOffer(ctx context.Context, actor authctx.Context, offerID string) (*Offer, error) {
	return s.transition(ctx, actor, offerID, "", StatusArchived)
}

func (s *Service) transition(ctx context.Context, actor authctx.Context, offerID string, from, to Status) (*Offer, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}

	o, err := s.ownedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}

	if from != "" && o.Status != from {
		return nil, errutil.Conflict("offer is not in a state that allows this transition")
	}

	if err := s.offers.Update(ctx, o.ID, map[string]interface{}{"status": to}); err != nil {
		return nil, errutil.Internal("failed to update offer", errutil.WithErr(err))
	}
	o.Status = to

	return o, nil
}

// DuplicateOffer deep-copies an offer and its products as one atomic insert.
// The copy comes out PUBLISHED with fresh identity and timestamps; matches
// and deliverables are never copied. Duplication is a premium action gated by
// the brand's billing subscription.
func (s *Service) DuplicateOffer(ctx context.Context, actor authctx.Context, offerID string) (*Offer, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("offer_id", offerID),
	)

	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}

	entitled, err := s.billing.Entitled(ctx, billing.SubjectBrand, actor.BrandID)
	if err != nil {
		return nil, errutil.Internal("failed to check billing entitlement", errutil.WithErr(err))
	}
	if !entitled {
		return nil, errutil.Forbidden("offer duplication requires an active subscription")
	}

	src, err := s.ownedOffer(ctx, actor, offerID, option.WithPreload("Products"))
	if err != nil {
		return nil, err
	}

	dup := *src
	dup.ID = s.node.Generate().String()
	dup.Status = StatusPublished
	dup.CreatedAt = zeroTime
	dup.UpdatedAt = zeroTime
	dup.Products = make([]Product, 0, len(src.Products))
	for _, p := range src.Products {
		cp := p
		cp.ID = s.node.Generate().String()
		cp.OfferID = dup.ID
		cp.CreatedAt = zeroTime
		cp.UpdatedAt = zeroTime
		dup.Products = append(dup.Products, cp)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&dup).Error
	}); err != nil {
		zapLog.Error("failed to duplicate offer", zap.Error(err))
		return nil, errutil.Internal("failed to duplicate offer", errutil.WithErr(err))
	}

	zapLog.Info("offer duplicated", zap.String("new_offer_id", dup.ID), zap.Int("products", len(dup.Products)))

	return &dup, nil
}

// GetOffer returns an offer owned by the caller's brand.
func (s *Service) GetOffer(ctx context.Context, actor authctx.Context, offerID string) (*Offer, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, err
	}
	return s.ownedOffer(ctx, actor, offerID, option.WithPreload("Products"))
}

// ListOffers pages through the caller brand's offers, newest first.
func (s *Service) ListOffers(ctx context.Context, actor authctx.Context, page pagination.Pagination) ([]*Offer, *pagination.PageInfo, error) {
	if err := actor.RequireBrand(); err != nil {
		return nil, nil, err
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}

	tx := s.db.WithContext(ctx).Where("brand_id = ?", actor.BrandID)
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor")
		}
		tx = tx.Where("id < ?", cursor.ID)
	}

	var offers []*Offer
	if err := tx.Order("id DESC").Limit(page.Limit + 1).Find(&offers).Error; err != nil {
		return nil, nil, errutil.Internal("failed to list offers", errutil.WithErr(err))
	}

	offers, info := pagination.BuildCursorPageInfo(offers, page.Limit, func(o *Offer) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{ID: o.ID})
		return c
	})

	return offers, info, nil
}

// PurgeBrand removes every fulfillment row belonging to a brand as one
// all-or-nothing unit: favorites, strikes, deliverables, matches, products,
// offers. Called by the account deletion pipeline.
func (s *Service) PurgeBrand(ctx context.Context, brandID string) error {
	if brandID == "" {
		return errutil.ValidationFailed("brand id is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		const matchesOfBrand = "SELECT id FROM matches WHERE offer_id IN (SELECT id FROM offers WHERE brand_id = ?)"

		if err := tx.Exec("DELETE FROM strikes WHERE match_id IN ("+matchesOfBrand+")", brandID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM deliverables WHERE match_id IN ("+matchesOfBrand+")", brandID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM matches WHERE offer_id IN (SELECT id FROM offers WHERE brand_id = ?)", brandID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM brand_favorites WHERE brand_id = ?", brandID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM creator_favorites WHERE brand_id = ?", brandID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM products WHERE offer_id IN (SELECT id FROM offers WHERE brand_id = ?)", brandID).Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM offers WHERE brand_id = ?", brandID).Error
	})
	if err != nil {
		zap.L().Error("brand purge failed", zap.String("brand_id", brandID), zap.Error(err))
		return errutil.Internal("failed to purge brand data", errutil.WithErr(err))
	}

	return nil
}

func (s *Service) ownedOffer(ctx context.Context, actor authctx.Context, offerID string, opts ...option.QueryOption) (*Offer, error) {
	o, err := s.offers.FindOne(ctx, &Offer{ID: offerID, BrandID: actor.BrandID}, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to load offer", errutil.WithErr(err))
	}
	if o == nil {
		// Missing and unowned look identical so existence never leaks.
		return nil, errutil.NotFound("offer not found")
	}
	return o, nil
}
