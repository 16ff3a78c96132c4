package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecordDefaults(t *testing.T) {
	exec := &recordingExec{rows: 1}
	logger := NewAuditLogger(exec)
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	logger.now = func() time.Time { return at }

	ctx := ContextWithActor(context.Background(), 42)
	require.NoError(t, logger.Record(ctx, AuditLog{Action: "product.delete", Entity: "product", EntityID: "9"}))

	args := exec.args[0]
	assert.Equal(t, int64(42), args[0])
	assert.Equal(t, []byte("{}"), args[4])
	assert.Equal(t, at.UTC(), args[5])
}

func TestAuditRecordKeepsExplicitActorAndMeta(t *testing.T) {
	exec := &recordingExec{rows: 1}
	logger := NewAuditLogger(exec)

	ctx := ContextWithActor(context.Background(), 42)
	err := logger.Record(ctx, AuditLog{ActorID: 3, Action: "product.create", Entity: "product", EntityID: "1", Meta: map[string]any{"barcode": "SY-3"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), exec.args[0][0])
	assert.JSONEq(t, `{"barcode":"SY-3"}`, string(exec.args[0][4].([]byte)))
}

func TestAuditRecordRejectsIncompleteEntries(t *testing.T) {
	exec := &recordingExec{}
	err := NewAuditLogger(exec).Record(context.Background(), AuditLog{Action: "x"})
	assert.ErrorIs(t, err, errIncompleteAudit)
	assert.Empty(t, exec.calls)
}
