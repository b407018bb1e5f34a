package dlock

import (
	"context"
	"time"

	"seedloop-core/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("dlock",
	fx.Provide(NewManager),
)

// CronLock is the lease ledger row. One row per job name; ownership is
// whoever's holder id survives the guarded takeover.
type CronLock struct {
	Job         string    `gorm:"column:job;primaryKey;type:varchar(128)"`
	LockedUntil time.Time `gorm:"column:locked_until;not null"`
	LockedBy    string    `gorm:"column:locked_by;type:varchar(64);not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CronLock) TableName() string { return "cron_locks" }

// Lease is the outcome of an Acquire attempt.
type Lease struct {
	Acquired    bool
	Holder      string
	LockedUntil time.Time
}

// Manager hands out single-winner advisory leases over named jobs. Leases are
// cooperative: the store does not enforce them against non-cooperating
// writers.
type Manager struct {
	db         *gorm.DB
	defaultTTL time.Duration
}

type ManagerParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
}

func NewManager(p ManagerParams) *Manager {
	return New(p.DB, p.Config.Lock.DefaultTTL)
}

func New(db *gorm.DB, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	return &Manager{db: db, defaultTTL: defaultTTL}
}

// NewHolder returns a random holder id for one acquire attempt.
func NewHolder() string {
	return uuid.NewString()
}

func (m *Manager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// Acquire attempts to take the lease for job. Takeover of an expired lease
// is a guarded UPDATE whose expiry predicate every dialect executes as
// written; MySQL's upsert form has no conditional update, so a single upsert
// cannot carry the guard there. A fresh lease is an insert that yields to
// any existing row. Ownership is then confirmed by re-reading the row and
// comparing locked_by against the candidate holder, because "my write
// succeeded" is not proof of ownership when two callers race for the same
// expired lease.
//
// Callers that lose must treat the job as already in progress and exit; there
// is no queueing or retry here.
func (m *Manager) Acquire(ctx context.Context, job string, ttl time.Duration, holder string) (Lease, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := time.Now().UTC()
	until := now.Add(ttl)

	res := m.db.WithContext(ctx).Model(&CronLock{}).
		Where("job = ? AND locked_until < ?", job, now).
		Updates(map[string]interface{}{
			"locked_until": until,
			"locked_by":    holder,
		})
	if res.Error != nil {
		return Lease{}, res.Error
	}
	if res.RowsAffected == 0 {
		// No expired row to take over: either the ledger has no row for this
		// job yet or a live lease exists. The insert settles which without
		// ever touching a live row.
		err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job"}},
			DoNothing: true,
		}).Create(&CronLock{
			Job:         job,
			LockedUntil: until,
			LockedBy:    holder,
		}).Error
		if err != nil {
			return Lease{}, err
		}
	}

	var row CronLock
	if err := m.db.WithContext(ctx).First(&row, "job = ?", job).Error; err != nil {
		return Lease{}, err
	}

	acquired := row.LockedBy == holder && row.LockedUntil.After(now)
	if !acquired {
		zap.L().Debug("lease held elsewhere",
			zap.String("job", job),
			zap.String("holder", row.LockedBy),
			zap.Time("locked_until", row.LockedUntil),
		)
	}

	return Lease{
		Acquired:    acquired,
		Holder:      row.LockedBy,
		LockedUntil: row.LockedUntil,
	}, nil
}

// Release expires the lease early, but only while holder still owns it.
// Releasing a lease you no longer hold is a no-op, never an error.
func (m *Manager) Release(ctx context.Context, job, holder string) {
	err := m.db.WithContext(ctx).Model(&CronLock{}).
		Where("job = ? AND locked_by = ?", job, holder).
		Update("locked_until", time.Now().UTC()).Error
	if err != nil {
		zap.L().Warn("failed to release lease", zap.String("job", job), zap.Error(err))
	}
}
