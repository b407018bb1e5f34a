package cron

import (
	"context"
	"encoding/json"
	"time"

	asynqpkg "seedloop-core/pkg/asynq"
	"seedloop-core/pkg/notify"
	"seedloop-core/pkg/taskname"
	"seedloop-core/services/fulfillment"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Jobs owns the registered cron jobs and their dependencies.
type Jobs struct {
	db     *gorm.DB
	client asynqpkg.Enqueuer
}

type JobsParams struct {
	fx.In

	DB     *gorm.DB
	Client *asynq.Client
}

func NewJobs(p JobsParams) *Jobs {
	return &Jobs{db: p.DB, client: p.Client}
}

var JobsModule = fx.Module("cron:jobs",
	fx.Provide(NewJobs),
)

func (j *Jobs) All() []Job {
	return []Job{
		{
			Name: "overdue deliverable sweep",
			Lock: taskname.LockOverdueSweep,
			TTL:  10 * time.Minute,
			Run:  j.sweepOverdueDeliverables,
		},
		{
			Name: "billing resync",
			Lock: taskname.LockBillingResync,
			TTL:  10 * time.Minute,
			Run:  j.enqueueBillingResync,
		},
	}
}

// sweepOverdueDeliverables finds DUE deliverables on shipped matches whose
// deadline has passed and enqueues a reminder notification for each, straight
// onto the queue the worker's delivery handlers drain. Reminders are
// best-effort; a failed enqueue is retried on the next sweep because the
// deliverable is still overdue.
func (j *Jobs) sweepOverdueDeliverables(ctx context.Context) error {
	type row struct {
		ID        string
		MatchID   string
		CreatorID string
	}

	var rows []row
	err := j.db.WithContext(ctx).
		Table("deliverables").
		Select("deliverables.id", "deliverables.match_id", "matches.creator_id").
		Joins("JOIN matches ON matches.id = deliverables.match_id").
		Where("deliverables.status = ?", fulfillment.DeliverableDue).
		Where("matches.status = ?", fulfillment.MatchClaimed).
		Where("deliverables.due_at IS NOT NULL AND deliverables.due_at < ?", time.Now().UTC()).
		Scan(&rows).Error
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, r := range rows {
		r := r
		g.Go(func() error {
			payload, err := json.Marshal(notify.Notification{
				Channel:   notify.ChannelEmail,
				Recipient: r.CreatorID,
				Template:  "deliverable.overdue",
				Data: map[string]string{
					"deliverable_id": r.ID,
					"match_id":       r.MatchID,
				},
			})
			if err != nil {
				return err
			}

			_, err = j.client.Enqueue(asynq.NewTask(taskname.NotificationEmail, payload,
				asynq.MaxRetry(2),
				asynq.Queue("low"),
			))
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("overdue sweep enqueued reminders", zap.Int("count", len(rows)))
	return nil
}

// enqueueBillingResync hands the billing subsystem a refresh tick. The core
// never mutates subscriptions itself.
func (j *Jobs) enqueueBillingResync(ctx context.Context) error {
	_, err := j.client.Enqueue(asynq.NewTask(taskname.BillingResync, nil,
		asynq.MaxRetry(1),
		asynq.Queue("low"),
	))
	return err
}
