package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "pos:session:"

	fieldUserID  = "user_id"
	fieldFlashes = "flashes"
	fieldIssued  = "issued_at"
	valuePrefix  = "v:"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager keeps browser sessions as Redis hashes keyed by a random
// cookie id. The hash holds the signed-in user, queued flashes and small
// string values such as the CSRF token.
type SessionManager struct {
	client     redis.UniversalClient
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID       string
	IssuedAt time.Time

	previous  string
	values    map[string]string
	userID    int64
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client redis.UniversalClient, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load returns the session named by the request cookie, or a fresh one when
// the cookie is missing, malformed or unknown to Redis.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return sm.newSession(), nil
	}

	fields, err := sm.client.HGetAll(ctx, sm.redisKey(cookie.Value)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return sm.newSession(), nil
	}
	return decodeSession(cookie.Value, fields)
}

func decodeSession(id string, fields map[string]string) (*Session, error) {
	sess := &Session{ID: id, values: make(map[string]string)}
	for field, value := range fields {
		switch {
		case field == fieldUserID:
			uid, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, err
			}
			sess.userID = uid
		case field == fieldFlashes:
			if err := json.Unmarshal([]byte(value), &sess.flashes); err != nil {
				return nil, err
			}
		case field == fieldIssued:
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, err
			}
			sess.IssuedAt = time.Unix(unix, 0).UTC()
		case strings.HasPrefix(field, valuePrefix):
			sess.values[strings.TrimPrefix(field, valuePrefix)] = value
		}
	}
	return sess, nil
}

func (s *Session) encode() (map[string]any, error) {
	fields := make(map[string]any, len(s.values)+3)
	for k, v := range s.values {
		fields[valuePrefix+k] = v
	}
	if s.userID != 0 {
		fields[fieldUserID] = strconv.FormatInt(s.userID, 10)
	}
	flashes, err := json.Marshal(s.flashes)
	if err != nil {
		return nil, err
	}
	fields[fieldFlashes] = string(flashes)
	fields[fieldIssued] = strconv.FormatInt(s.IssuedAt.Unix(), 10)
	return fields, nil
}

// Commit persists the session and writes cookie headers as needed. Clean
// sessions only have their expiry extended.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		keys := []string{sm.redisKey(sess.ID)}
		if sess.previous != "" {
			keys = append(keys, sm.redisKey(sess.previous))
		}
		if err := sm.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1, time.Time{}))
		return nil
	}

	key := sm.redisKey(sess.ID)
	if sess.dirty || sess.isNew {
		fields, err := sess.encode()
		if err != nil {
			return err
		}
		_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if sess.previous != "" {
				pipe.Del(ctx, sm.redisKey(sess.previous))
			}
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, sm.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		sess.previous = ""
		sess.dirty = false
		sess.isNew = false
	} else if err := sm.client.Expire(ctx, key, sm.ttl).Err(); err != nil {
		return err
	}

	http.SetCookie(w, sm.cookie(sess.ID, 0, time.Now().Add(sm.ttl)))
	return nil
}

func (sm *SessionManager) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Renew assigns a new identifier to the session, keeping its values. The old
// key is removed on the next Commit. Called on login and logout.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.previous = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.IssuedAt = time.Now().UTC()
	sess.dirty = true
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser binds the session to a user; zero signs it out.
func (s *Session) SetUser(id int64) {
	s.userID = id
	s.dirty = true
}

// UserID returns the signed-in user, or zero.
func (s *Session) UserID() int64 {
	return s.userID
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:       uuid.NewString(),
		IssuedAt: time.Now().UTC(),
		values:   make(map[string]string),
		isNew:    true,
		dirty:    true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return sessionKeyPrefix + id
}
