package notify

import (
	"context"
	"encoding/json"
	"time"

	"seedloop-core/pkg/config"
	"seedloop-core/pkg/taskname"

	asynqpkg "seedloop-core/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewDispatcher),
)

type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// Notification is the payload handed to the outbound delivery worker.
type Notification struct {
	Channel   Channel           `json:"channel"`
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Data      map[string]string `json:"data,omitempty"`
}

// Dispatcher enqueues outbound notifications after successful state
// transitions. Dispatch is fire-and-forget: enqueue failures are logged and
// never propagate to the caller, so a transition can't be rolled back by a
// broken notification pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

type asynqDispatcher struct {
	client  asynqpkg.Enqueuer
	timeout time.Duration
}

type DispatcherParams struct {
	fx.In

	Client *asynq.Client
	Config *config.Config
}

func NewDispatcher(p DispatcherParams) Dispatcher {
	return &asynqDispatcher{
		client:  p.Client,
		timeout: p.Config.Notification.Timeout,
	}
}

// NewDispatcherWithEnqueuer is used by tests and by the cron worker, which
// already holds an Enqueuer.
func NewDispatcherWithEnqueuer(client asynqpkg.Enqueuer, timeout time.Duration) Dispatcher {
	return &asynqDispatcher{client: client, timeout: timeout}
}

func (d *asynqDispatcher) Dispatch(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		zap.L().Error("failed to marshal notification", zap.Error(err))
		return
	}

	taskType := taskname.NotificationEmail
	switch n.Channel {
	case ChannelSMS:
		taskType = taskname.NotificationSMS
	case ChannelWhatsApp:
		taskType = taskname.NotificationWhatsApp
	}

	task := asynq.NewTask(taskType, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(d.timeout),
		asynq.Queue("low"),
	)

	if _, err := d.client.Enqueue(task); err != nil {
		zap.L().Error("failed to enqueue notification",
			zap.String("task_type", taskType),
			zap.String("template", n.Template),
			zap.Error(err),
		)
	}
}
