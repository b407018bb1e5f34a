package main

import (
	"context"

	"seedloop-core/internal/httpapi"
	"seedloop-core/internal/server"
	asynqpkg "seedloop-core/pkg/asynq"
	"seedloop-core/pkg/config"
	"seedloop-core/pkg/db"
	"seedloop-core/pkg/dlock"
	"seedloop-core/pkg/gen"
	"seedloop-core/pkg/health"
	"seedloop-core/pkg/logger"
	"seedloop-core/pkg/migrate"
	"seedloop-core/pkg/notify"
	"seedloop-core/pkg/ratelimit"
	redispkg "seedloop-core/pkg/redis"
	"seedloop-core/pkg/sequence"
	"seedloop-core/services/billing"
	"seedloop-core/services/cron"
	"seedloop-core/services/favorite"
	"seedloop-core/services/fulfillment"
	"seedloop-core/services/offer"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	fx.New(
		logger.Module,
		config.Module,
		db.Module,
		redispkg.Module,
		gen.Module,
		health.Module,

		asynqpkg.Client,
		notify.Module,

		dlock.Module,
		ratelimit.Module,
		sequence.Module,

		billing.Module,
		offer.Module,
		fulfillment.Module,
		favorite.Module,

		cron.JobsModule,
		cron.Module,

		httpapi.Module,
		server.Module,

		fx.Invoke(prepareDatabase),
	).Run()
}

// prepareDatabase installs the query plugins and runs the lease-guarded
// schema migration before the server starts serving.
func prepareDatabase(cfg *config.Config, gdb *gorm.DB) error {
	if err := db.Otel(gdb); err != nil {
		return err
	}
	if err := db.Metric(gdb, cfg.Database.DBNAME); err != nil {
		return err
	}

	return migrate.Run(context.Background(), gdb,
		&offer.Offer{},
		&offer.Product{},
		&fulfillment.Match{},
		&fulfillment.Deliverable{},
		&fulfillment.Strike{},
		&favorite.BrandFavorite{},
		&favorite.CreatorFavorite{},
		&billing.Subscription{},
		&ratelimit.Bucket{},
		&dlock.CronLock{},
	)
}
