package billing_test

import (
	"context"
	"testing"

	"seedloop-core/pkg/taskname"
	"seedloop-core/services/billing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestResyncTickHasAConsumer(t *testing.T) {
	mux := asynq.NewServeMux()
	billing.RegisterHandlers(mux)

	err := mux.ProcessTask(context.Background(), asynq.NewTask(taskname.BillingResync, nil))
	require.NoError(t, err)
}
