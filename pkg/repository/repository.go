package repository

import (
	"context"
	"errors"

	"seedloop-core/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is the generic gorm-backed store used by service packages for
// plain reads and writes. Anything needing conditional upserts or multi-row
// transactions talks to *gorm.DB directly.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, id string, values any) error
	BatchCreate(ctx context.Context, entities []*T) error
	Count(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	tx := option.Apply(s.db.WithContext(ctx).Where(query), opts...)
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	tx := option.Apply(s.db.WithContext(ctx).Where(query), opts...)
	if err := tx.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *store[T]) Update(ctx context.Context, id string, values any) error {
	var model T
	return s.db.WithContext(ctx).Model(&model).Where("id = ?", id).Updates(values).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(entities).Error
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var model T
	var count int64
	if err := s.db.WithContext(ctx).Model(&model).Where(query).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
