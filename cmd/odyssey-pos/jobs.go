package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) (*jobsCLI, error) {
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	return &jobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

func (c *jobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// maintenanceTask builds the task for a manually triggered maintenance job.
func maintenanceTask(name string, at time.Time) (*asynq.Task, error) {
	switch name {
	case jobs.TaskRefreshTokenPurge:
		return jobs.NewRefreshTokenPurgeTask(at)
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(at)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

func (c *jobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	task, err := maintenanceTask(name, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports every worker queue; queues that never held a task
// are reported as empty.
func (c *jobsCLI) InspectQueues() ([]queueStats, error) {
	names, err := c.inspector.Queues()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(names))
	for _, name := range names {
		known[name] = true
	}
	var out []queueStats
	for _, queue := range jobs.Queues() {
		if !known[queue] {
			out = append(out, queueStats{Queue: queue})
			continue
		}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil {
			return nil, err
		}
		out = append(out, queueStats{
			Queue:     queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		})
	}
	return out, nil
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a maintenance task now",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{jobs.TaskRefreshTokenPurge, jobs.TaskIdempotencyCleanup},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			cli, err := newJobsCLI(cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer cli.Close()
			info, err := cli.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			cli, err := newJobsCLI(cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer cli.Close()
			all, err := cli.InspectQueues()
			if err != nil {
				return err
			}
			for _, stats := range all {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			}
			return nil
		},
	})
	return cmd
}
