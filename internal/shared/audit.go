package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AuditLog is one row of audit_logs. Entity and EntityID identify the record
// that changed; Meta is stored as JSONB.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditRecorder is the write side used by services.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes AuditLog entries through a pool or transaction.
type AuditLogger struct {
	db  Execer
	now func() time.Time
}

func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

var errIncompleteAudit = errors.New("audit: action, entity and entity id are required")

// Record stores entry. The actor falls back to the one on ctx and the
// timestamp to the current time.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errIncompleteAudit
	}
	if entry.ActorID == 0 {
		entry.ActorID = ActorFromContext(ctx)
	}
	if entry.At.IsZero() {
		entry.At = l.now()
	}
	meta := []byte("{}")
	if len(entry.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(entry.Meta); err != nil {
			return fmt.Errorf("audit %s: encode meta: %w", entry.Action, err)
		}
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, entry.At.UTC())
	if err != nil {
		return fmt.Errorf("audit %s: %w", entry.Action, err)
	}
	return nil
}
