package migrate

import (
	"context"
	"time"

	"seedloop-core/pkg/dlock"
	"seedloop-core/pkg/taskname"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// advisoryLockID is the fixed key for the migration mutex. It lives in the
// database-native advisory lock namespace, distinct from the job-keyed cron
// lease ledger.
const advisoryLockID int64 = 874201

const fallbackLeaseTTL = 5 * time.Minute

// Run migrates the given models under a deploy-wide mutual exclusion. If the
// lock is already held, a concurrent deploy is migrating and this caller
// skips rather than waits.
func Run(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	release, acquired, err := tryLock(ctx, db)
	if err != nil {
		return err
	}
	if !acquired {
		zap.L().Info("migration lock held by a concurrent deploy, skipping migration")
		return nil
	}
	defer release()

	zap.L().Info("running schema migration", zap.Int("models", len(models)))
	return db.WithContext(ctx).AutoMigrate(models...)
}

// tryLock takes a non-blocking pg advisory lock on postgres. Other dialects
// fall back to a reserved cron lease, which gives the same skip-don't-wait
// behavior without a native advisory primitive.
func tryLock(ctx context.Context, db *gorm.DB) (release func(), acquired bool, err error) {
	if db.Dialector.Name() == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, false, err
		}

		// Advisory locks are session-scoped; pin one connection for the
		// whole lock/unlock pair.
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, false, err
		}

		var got bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockID).Scan(&got); err != nil {
			conn.Close()
			return nil, false, err
		}
		if !got {
			conn.Close()
			return nil, false, nil
		}

		release = func() {
			if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
				zap.L().Warn("failed to release migration advisory lock", zap.Error(err))
			}
			conn.Close()
		}
		return release, true, nil
	}

	// The lease table must exist before the lease can be taken.
	if err := db.WithContext(ctx).AutoMigrate(&dlock.CronLock{}); err != nil {
		return nil, false, err
	}

	mgr := dlock.New(db, fallbackLeaseTTL)
	holder := dlock.NewHolder()
	lease, err := mgr.Acquire(ctx, taskname.LockMigration, fallbackLeaseTTL, holder)
	if err != nil {
		return nil, false, err
	}
	if !lease.Acquired {
		return nil, false, nil
	}

	release = func() { mgr.Release(ctx, taskname.LockMigration, holder) }
	return release, true, nil
}
