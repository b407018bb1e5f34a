package favorite

import (
	"context"

	"seedloop-core/pkg/authctx"
	"seedloop-core/pkg/errutil"
	"seedloop-core/pkg/notify"
	"seedloop-core/services/eligibility"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("favorite.module",
	fx.Provide(NewService),
)

type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	dispatcher notify.Dispatcher
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Dispatcher notify.Dispatcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		node:       p.Node,
		dispatcher: p.Dispatcher,
	}
}

// AddBrandFavorite bookmarks a creator for the caller's brand. The
// eligibility check and the insert share one transaction; under
// read-committed isolation a concurrent un-verify can still commit between
// them, a narrow window the lifecycle accepts. The insert itself is
// insert-if-absent, making concurrent duplicate adds idempotent.
func (s *Service) AddBrandFavorite(ctx context.Context, actor authctx.Context, creatorID string) error {
	if err := actor.RequireBrand(); err != nil {
		return err
	}
	if creatorID == "" {
		return errutil.ValidationFailed("creator id is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := eligibility.FavoriteEligible(ctx, tx, actor.BrandID, creatorID)
		if err != nil {
			return err
		}
		if !ok {
			return errutil.Conflict("no verified deliverable exists with this creator")
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&BrandFavorite{
			ID:        s.node.Generate().String(),
			BrandID:   actor.BrandID,
			CreatorID: creatorID,
		}).Error
	})
	if err != nil {
		if _, ok := err.(errutil.BaseError); ok {
			return err
		}
		zap.L().Error("failed to add brand favorite", zap.Error(err))
		return errutil.Internal("failed to add favorite", errutil.WithErr(err))
	}

	s.dispatcher.Dispatch(ctx, notify.Notification{
		Channel:   notify.ChannelEmail,
		Recipient: creatorID,
		Template:  "favorite.added",
	})

	return nil
}

// RemoveBrandFavorite deletes the bookmark. Removal is unconditional and
// succeeds even when no row exists.
func (s *Service) RemoveBrandFavorite(ctx context.Context, actor authctx.Context, creatorID string) error {
	if err := actor.RequireBrand(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Where("brand_id = ? AND creator_id = ?", actor.BrandID, creatorID).
		Delete(&BrandFavorite{}).Error
	if err != nil {
		return errutil.Internal("failed to remove favorite", errutil.WithErr(err))
	}
	return nil
}

// AddCreatorFavorite is the symmetric creator-side path with the same
// verified-deliverable gate.
func (s *Service) AddCreatorFavorite(ctx context.Context, actor authctx.Context, brandID string) error {
	if err := actor.RequireCreator(); err != nil {
		return err
	}
	if brandID == "" {
		return errutil.ValidationFailed("brand id is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := eligibility.FavoriteEligible(ctx, tx, brandID, actor.CreatorID)
		if err != nil {
			return err
		}
		if !ok {
			return errutil.Conflict("no verified deliverable exists with this brand")
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&CreatorFavorite{
			ID:        s.node.Generate().String(),
			CreatorID: actor.CreatorID,
			BrandID:   brandID,
		}).Error
	})
	if err != nil {
		if _, ok := err.(errutil.BaseError); ok {
			return err
		}
		zap.L().Error("failed to add creator favorite", zap.Error(err))
		return errutil.Internal("failed to add favorite", errutil.WithErr(err))
	}

	return nil
}

// RemoveCreatorFavorite deletes the creator-side bookmark unconditionally.
func (s *Service) RemoveCreatorFavorite(ctx context.Context, actor authctx.Context, brandID string) error {
	if err := actor.RequireCreator(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Where("creator_id = ? AND brand_id = ?", actor.CreatorID, brandID).
		Delete(&CreatorFavorite{}).Error
	if err != nil {
		return errutil.Internal("failed to remove favorite", errutil.WithErr(err))
	}
	return nil
}
