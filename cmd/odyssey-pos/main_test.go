package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"serve"}, {"migrate"}, {"jobs", "trigger"}, {"jobs", "stats"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("migrate"))
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "sideways"})
	assert.Error(t, root.Execute())
}

func TestMaintenanceTask(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task, err := maintenanceTask(jobs.TaskRefreshTokenPurge, at)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskRefreshTokenPurge, task.Type())

	task, err = maintenanceTask(jobs.TaskIdempotencyCleanup, at)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = maintenanceTask(jobs.TaskLabelRender, at)
	assert.Error(t, err)
}
