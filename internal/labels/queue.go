package labels

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/products"
)

// Enqueuer submits render tasks to the worker.
type Enqueuer interface {
	EnqueueLabelRender(ctx context.Context, jobID string) (*asynq.TaskInfo, error)
}

// Queue records label jobs and hands them to the worker.
type Queue struct {
	store    *Store
	enqueuer Enqueuer
}

// NewQueue constructs a Queue.
func NewQueue(store *Store, enqueuer Enqueuer) *Queue {
	return &Queue{store: store, enqueuer: enqueuer}
}

// EnqueueLabels saves the job as pending before queueing it, so the PDF
// endpoint answers 202 rather than 404 while the worker catches up.
func (q *Queue) EnqueueLabels(ctx context.Context, in products.LabelJob) error {
	job := NewJob(in, time.Now())
	if err := q.store.Save(ctx, job); err != nil {
		return err
	}
	if _, err := q.enqueuer.EnqueueLabelRender(ctx, job.ID); err != nil {
		_ = q.store.Fail(ctx, job.ID, "could not be queued")
		return fmt.Errorf("labels: enqueue: %w", err)
	}
	return nil
}

var _ products.LabelQueue = (*Queue)(nil)
