package billing

import (
	"context"

	"seedloop-core/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var WorkerModule = fx.Module("billing:worker",
	fx.Invoke(RegisterHandlers),
)

// RegisterHandlers consumes the periodic resync tick. Subscription rows are
// written by the payment-provider webhook pipeline; the core-side consumer
// acknowledges the tick so resync tasks never sit in the retry queue.
func RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.BillingResync, handleResyncTick)
}

func handleResyncTick(ctx context.Context, task *asynq.Task) error {
	zap.L().Info("billing resync tick")
	return nil
}
