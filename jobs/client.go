package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisConnOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueLabelRender enqueues a label sheet render. The task id is the label
// job id, so a job is never queued twice.
func (c *Client) EnqueueLabelRender(ctx context.Context, jobID string) (*asynq.TaskInfo, error) {
	task, err := NewLabelRenderTask(jobID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.TaskID("labels:"+jobID))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
