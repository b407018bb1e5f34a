package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewLimiter),
)

// Bucket is a fixed-window counter row. Buckets are append-only: stale
// windows are never read again and never pruned.
type Bucket struct {
	Key         string `gorm:"column:bucket_key;primaryKey;type:varchar(128)"`
	WindowStart int64  `gorm:"column:window_start;primaryKey;autoIncrement:false"`
	Count       int64  `gorm:"column:count;not null"`
}

func (Bucket) TableName() string { return "rate_limit_buckets" }

// Result reports the outcome of one Check call.
type Result struct {
	Allowed     bool
	Count       int64
	WindowStart int64
}

// Limiter counts requests in fixed, non-sliding windows. The atomicity lives
// entirely in the upsert's conflict step, so concurrent increments are safe
// without any application-level locking. A burst straddling a window boundary
// can admit up to 2x the limit across the boundary; that is the accepted
// tradeoff for fixed windows.
type Limiter struct {
	db *gorm.DB
}

type LimiterParams struct {
	fx.In

	DB *gorm.DB
}

func NewLimiter(p LimiterParams) *Limiter {
	return New(p.DB)
}

func New(db *gorm.DB) *Limiter {
	return &Limiter{db: db}
}

// Check increments the bucket for key in the current window and reports
// whether the caller is within limit. Windows shorter than a millisecond
// are rejected; window math runs at millisecond resolution.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return Result{}, fmt.Errorf("rate limit window must be at least 1ms, got %s", window)
	}
	windowStart := time.Now().UnixMilli() / windowMs * windowMs

	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bucket_key"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("count + 1"),
		}),
	}).Create(&Bucket{
		Key:         key,
		WindowStart: windowStart,
		Count:       1,
	}).Error
	if err != nil {
		return Result{}, err
	}

	var bucket Bucket
	if err := l.db.WithContext(ctx).
		First(&bucket, "bucket_key = ? AND window_start = ?", key, windowStart).Error; err != nil {
		return Result{}, err
	}

	return Result{
		Allowed:     bucket.Count <= limit,
		Count:       bucket.Count,
		WindowStart: windowStart,
	}, nil
}
