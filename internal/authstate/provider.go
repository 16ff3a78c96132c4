// Package authstate reconciles the browser session with the credential pair
// stored for it, refreshing expired access tokens on demand.
package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

// Status is the authentication state of a session.
type Status int

const (
	// Unauthenticated means no usable credentials are stored.
	Unauthenticated Status = iota
	// Authenticated means the stored access token is valid.
	Authenticated
	// Refreshing is reported while a refresh call is in flight.
	Refreshing
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// State is the result of a state query.
type State struct {
	Status    Status
	Principal token.Principal
}

// IsAuthenticated reports whether the state carries a principal.
func (s State) IsAuthenticated() bool {
	return s.Status == Authenticated
}

// Change is delivered to subscribers whenever a session changes state.
type Change struct {
	SessionID string
	State     State
}

// Validator verifies access tokens.
type Validator interface {
	Validate(accessToken string) (token.Principal, bool)
}

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Rotate(ctx context.Context, refreshToken string) (token.Pair, error)
}

var errTokenRejected = errors.New("authstate: issued access token rejected")

// Provider answers "who is the current user" for a session.
type Provider struct {
	store     Store
	validator Validator
	refresher Refresher
	logger    *slog.Logger
	clock     func() time.Time
	group     singleflight.Group

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Change)
}

// NewProvider constructs a Provider.
func NewProvider(store Store, validator Validator, refresher Refresher, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:     store,
		validator: validator,
		refresher: refresher,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
		subs:      make(map[int]func(Change)),
	}
}

// State derives the session state from the store. It never returns an error:
// any failure is reported as Unauthenticated.
func (p *Provider) State(ctx context.Context, sessionID string) State {
	rec, err := p.store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNoRecord) {
			p.logger.Warn("authstate load", slog.Any("error", err))
		}
		return State{Status: Unauthenticated}
	}
	if rec.AccessToken == "" {
		return State{Status: Unauthenticated}
	}
	if principal, ok := p.validator.Validate(rec.AccessToken); ok {
		return State{Status: Authenticated, Principal: principal}
	}
	if rec.RefreshToken == "" {
		p.forget(ctx, sessionID)
		return State{Status: Unauthenticated}
	}

	v, _, _ := p.group.Do(sessionID, func() (any, error) {
		return p.refresh(context.WithoutCancel(ctx), sessionID, rec), nil
	})
	return v.(State)
}

func (p *Provider) refresh(ctx context.Context, sessionID string, rec Record) State {
	// Another request may already have rotated this session.
	if cur, err := p.store.Load(ctx, sessionID); err == nil && cur.RefreshToken != rec.RefreshToken {
		if principal, ok := p.validator.Validate(cur.AccessToken); ok {
			return State{Status: Authenticated, Principal: principal}
		}
	}
	p.broadcast(sessionID, State{Status: Refreshing})

	pair, err := p.refresher.Rotate(ctx, rec.RefreshToken)
	if err != nil {
		p.logger.Info("authstate refresh rejected", slog.String("session", shortID(sessionID)), slog.Any("error", err))
		p.forget(ctx, sessionID)
		return State{Status: Unauthenticated}
	}
	principal, ok := p.validator.Validate(pair.AccessToken)
	if !ok {
		p.logger.Warn("authstate refresh", slog.Any("error", errTokenRejected))
		p.forget(ctx, sessionID)
		return State{Status: Unauthenticated}
	}
	next := Record{
		Principal:    principal,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedAt:    p.clock(),
	}
	if err := p.store.Save(ctx, sessionID, next); err != nil {
		p.logger.Warn("authstate save refreshed record", slog.Any("error", err))
		p.forget(ctx, sessionID)
		return State{Status: Unauthenticated}
	}
	st := State{Status: Authenticated, Principal: principal}
	p.broadcast(sessionID, st)
	return st
}

// SignIn stores a freshly issued pair for the session and announces the
// principal carried by its access token.
func (p *Provider) SignIn(ctx context.Context, sessionID string, pair token.Pair) (token.Principal, error) {
	principal, ok := p.validator.Validate(pair.AccessToken)
	if !ok {
		return token.Principal{}, errTokenRejected
	}
	rec := Record{
		Principal:    principal,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedAt:    p.clock(),
	}
	if err := p.store.Save(ctx, sessionID, rec); err != nil {
		return token.Principal{}, err
	}
	p.broadcast(sessionID, State{Status: Authenticated, Principal: principal})
	return principal, nil
}

// SignOut clears the session record and returns the refresh token it held so
// the caller can revoke it.
func (p *Provider) SignOut(ctx context.Context, sessionID string) (string, error) {
	rec, err := p.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNoRecord) {
		return "", err
	}
	if err := p.store.Clear(ctx, sessionID); err != nil {
		return "", err
	}
	p.broadcast(sessionID, State{Status: Unauthenticated})
	return rec.RefreshToken, nil
}

// Subscribe registers fn for state changes. The returned func unsubscribes.
func (p *Provider) Subscribe(fn func(Change)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Provider) forget(ctx context.Context, sessionID string) {
	if err := p.store.Clear(ctx, sessionID); err != nil {
		p.logger.Warn("authstate clear", slog.Any("error", err))
	}
	p.broadcast(sessionID, State{Status: Unauthenticated})
}

func (p *Provider) broadcast(sessionID string, st State) {
	p.mu.RLock()
	subs := make([]func(Change), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(Change{SessionID: sessionID, State: st})
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
