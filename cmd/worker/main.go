package main

import (
	asynqpkg "seedloop-core/pkg/asynq"
	"seedloop-core/pkg/config"
	"seedloop-core/pkg/logger"
	"seedloop-core/pkg/notify"
	redispkg "seedloop-core/pkg/redis"
	"seedloop-core/services/billing"

	"go.uber.org/fx"
)

// The worker drains the notification queues and the cron-driven billing
// tick. It shares config and redis with the core binary but carries no
// database or HTTP surface.
func main() {
	fx.New(
		logger.Module,
		config.Module,
		redispkg.Module,

		asynqpkg.Server,
		notify.WorkerModule,
		billing.WorkerModule,
	).Run()
}
