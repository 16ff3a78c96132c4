package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// RefreshTokenPurger removes refresh tokens that can no longer be used.
type RefreshTokenPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewRefreshTokenPurgeHandler returns the handler for TaskRefreshTokenPurge.
func NewRefreshTokenPurgeHandler(purger RefreshTokenPurger, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("refresh_token_purge")
		n, err := purger.PurgeExpired(ctx, retention)
		if err == nil {
			metrics.AddPurged("refresh_tokens", n)
			logInfo(logger, "refresh tokens purged", slog.Int64("rows", n))
		}
		return tracker.End(err)
	}
}

// NewIdempotencyCleanupHandler returns the handler for TaskIdempotencyCleanup.
func NewIdempotencyCleanupHandler(cleaner KeyCleaner, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("idempotency_cleanup")
		n, err := cleaner.Cleanup(ctx, retention)
		if err == nil {
			metrics.AddPurged("idempotency_keys", n)
			logInfo(logger, "idempotency keys cleaned", slog.Int64("rows", n))
		}
		return tracker.End(err)
	}
}

func logInfo(logger *slog.Logger, msg string, attrs ...any) {
	if logger != nil {
		logger.Info(msg, attrs...)
	}
}
