package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"seedloop-core/pkg/notify"
	"seedloop-core/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestDispatchRoutesByChannel(t *testing.T) {
	fake := &fakeEnqueuer{}
	d := notify.NewDispatcherWithEnqueuer(fake, time.Second)
	ctx := context.Background()

	d.Dispatch(ctx, notify.Notification{Channel: notify.ChannelEmail, Recipient: "r1", Template: "match.claimed"})
	d.Dispatch(ctx, notify.Notification{Channel: notify.ChannelSMS, Recipient: "r2", Template: "match.accepted"})
	d.Dispatch(ctx, notify.Notification{Channel: notify.ChannelWhatsApp, Recipient: "r3", Template: "deliverable.verified"})

	require.Len(t, fake.tasks, 3)
	require.Equal(t, taskname.NotificationEmail, fake.tasks[0].Type())
	require.Equal(t, taskname.NotificationSMS, fake.tasks[1].Type())
	require.Equal(t, taskname.NotificationWhatsApp, fake.tasks[2].Type())

	var n notify.Notification
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &n))
	require.Equal(t, "r1", n.Recipient)
	require.Equal(t, "match.claimed", n.Template)
}

func TestDispatchSwallowsEnqueueErrors(t *testing.T) {
	fake := &fakeEnqueuer{err: errors.New("redis down")}
	d := notify.NewDispatcherWithEnqueuer(fake, time.Second)

	// Dispatch is fire-and-forget; a broken queue must not reach the caller.
	d.Dispatch(context.Background(), notify.Notification{
		Channel:   notify.ChannelEmail,
		Recipient: "r1",
		Template:  "match.claimed",
	})
}
