package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

// DefaultIdleTimeout matches the browser session idle window.
const DefaultIdleTimeout = 30 * time.Minute

// ErrNoRecord indicates the session has no stored credentials.
var ErrNoRecord = errors.New("authstate: no record")

// Record is the per-session credential snapshot.
type Record struct {
	Principal    token.Principal `json:"principal"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Store persists records keyed by session id.
type Store interface {
	Load(ctx context.Context, sessionID string) (Record, error)
	Save(ctx context.Context, sessionID string, rec Record) error
	Clear(ctx context.Context, sessionID string) error
}

// RedisStore keeps records in Redis with a sliding idle expiry.
type RedisStore struct {
	client redis.UniversalClient
	idle   time.Duration
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.UniversalClient, idle time.Duration) *RedisStore {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &RedisStore{client: client, idle: idle}
}

// Load returns the record and extends its idle expiry.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (Record, error) {
	if sessionID == "" {
		return Record{}, ErrNoRecord
	}
	key := s.key(sessionID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("authstate: load: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("authstate: decode: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.idle).Err(); err != nil {
		return Record{}, fmt.Errorf("authstate: touch: %w", err)
	}
	return rec, nil
}

// Save writes the record, resetting the idle expiry.
func (s *RedisStore) Save(ctx context.Context, sessionID string, rec Record) error {
	if sessionID == "" {
		return errors.New("authstate: session id required")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("authstate: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.idle).Err(); err != nil {
		return fmt.Errorf("authstate: save: %w", err)
	}
	return nil
}

// Clear removes the record. Clearing an absent record is not an error.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("authstate: clear: %w", err)
	}
	return nil
}

func (s *RedisStore) key(sessionID string) string {
	return "authstate:" + sessionID
}

var _ Store = (*RedisStore)(nil)
