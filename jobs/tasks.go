package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueLabels carries label sheet renders.
	QueueLabels = "labels"
	// QueueMaintenance carries scheduled housekeeping.
	QueueMaintenance = "maintenance"

	// TaskLabelRender renders a label sheet into a PDF.
	TaskLabelRender = "labels:render"
	// TaskRefreshTokenPurge deletes spent and expired refresh tokens.
	TaskRefreshTokenPurge = "auth:refresh_token_purge"
	// TaskIdempotencyCleanup drops old import idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

var queueWeights = map[string]int{
	QueueLabels:      6,
	QueueMaintenance: 1,
}

// Queues lists the queues served by the worker, highest priority first.
func Queues() []string {
	return []string{QueueLabels, QueueMaintenance}
}

// LabelRenderPayload identifies the label job to render.
type LabelRenderPayload struct {
	JobID string `json:"job_id"`
}

// NewLabelRenderTask constructs an Asynq task for a label sheet.
func NewLabelRenderTask(jobID string) (*asynq.Task, error) {
	if jobID == "" {
		return nil, errors.New("jobs: label job id required")
	}
	body, err := json.Marshal(LabelRenderPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLabelRender, body, asynq.Queue(QueueLabels), asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}

// MaintenancePayload carries scheduling metadata for cron tasks.
type MaintenancePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewRefreshTokenPurgeTask constructs the refresh token purge task.
func NewRefreshTokenPurgeTask(at time.Time) (*asynq.Task, error) {
	return newMaintenanceTask(TaskRefreshTokenPurge, at)
}

// NewIdempotencyCleanupTask constructs the idempotency key cleanup task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	return newMaintenanceTask(TaskIdempotencyCleanup, at)
}

func newMaintenanceTask(kind string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MaintenancePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueMaintenance), asynq.Unique(time.Hour)), nil
}
