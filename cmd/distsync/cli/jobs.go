package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/sokhunov/Distribution-Interface/jobs"
)

// Enqueuer submits synchronizer runs to the worker queue.
type Enqueuer interface {
	EnqueueGoodsSync(ctx context.Context, requestedBy string) (*asynq.TaskInfo, error)
	EnqueueSalesSync(ctx context.Context, requestedBy string) (*asynq.TaskInfo, error)
}

// JobsCLI hands synchronizer runs to the worker instead of running them inline.
type JobsCLI struct {
	client Enqueuer
}

// NewJobsCLI wraps an enqueuer such as *jobs.Client.
func NewJobsCLI(client Enqueuer) *JobsCLI {
	return &JobsCLI{client: client}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name, requestedBy string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case "goods", jobs.TaskGoodsSync:
		return c.client.EnqueueGoodsSync(ctx, requestedBy)
	case "sales", jobs.TaskSalesSync:
		return c.client.EnqueueSalesSync(ctx, requestedBy)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// EnqueueCommand triggers name and reports the task id.
func (c *JobsCLI) EnqueueCommand(ctx context.Context, name, requestedBy string, opts SyncOptions) int {
	opts = opts.withDefaults()
	info, err := c.Trigger(ctx, name, requestedBy)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "enqueue: %v\n", err)
		return ExitFailure
	}
	fmt.Fprintf(opts.Stdout, "Enqueued %s as %s on queue %s.\n", info.Type, info.ID, info.Queue)
	return ExitOK
}
