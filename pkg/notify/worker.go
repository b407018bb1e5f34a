package notify

import (
	"context"
	"encoding/json"
	"time"

	"seedloop-core/pkg/config"
	"seedloop-core/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender is the outbound delivery collaborator (email/SMS/WhatsApp gateway).
// Implementations live outside the core; a send is bounded by the configured
// timeout and reported as pass/fail, never retried synchronously.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, n Notification) error

func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogSender is the default sink when no gateway is configured.
var LogSender = SenderFunc(func(ctx context.Context, n Notification) error {
	zap.L().Info("notification delivered (log sink)",
		zap.String("channel", string(n.Channel)),
		zap.String("template", n.Template),
	)
	return nil
})

var WorkerModule = fx.Module("notify:worker",
	fx.Invoke(RegisterHandlers),
)

type WorkerParams struct {
	fx.In

	Mux    *asynq.ServeMux
	Config *config.Config
	Sender Sender `optional:"true"`
}

func RegisterHandlers(p WorkerParams) {
	sender := p.Sender
	if sender == nil {
		sender = LogSender
	}

	handler := deliveryHandler(sender, p.Config.Notification.Timeout)
	p.Mux.HandleFunc(taskname.NotificationEmail, handler)
	p.Mux.HandleFunc(taskname.NotificationSMS, handler)
	p.Mux.HandleFunc(taskname.NotificationWhatsApp, handler)
}

func deliveryHandler(sender Sender, timeout time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var n Notification
		if err := json.Unmarshal(task.Payload(), &n); err != nil {
			zap.L().Error("malformed notification payload", zap.Error(err))
			return nil // drop, retrying won't fix a bad payload
		}

		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := sender.Send(sendCtx, n); err != nil {
			zap.L().Warn("notification delivery failed",
				zap.String("channel", string(n.Channel)),
				zap.String("template", n.Template),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}
