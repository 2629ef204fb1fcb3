// Package session issues, validates and revokes the opaque bearer tokens that
// authorise chat requests. A token maps to at most one live session and is never
// reissued; revocation is idempotent.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// TokenPrefix marks gateway tokens so they are recognisable in secret scanners.
const TokenPrefix = "cl_"

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

const maxIssueAttempts = 5

var (
	// ErrInvalidToken is returned when a token is absent, unknown, revoked or expired.
	ErrInvalidToken = errors.New("session: invalid or expired token")
	// ErrStoreUnavailable wraps backing store failures.
	ErrStoreUnavailable = errors.New("session: store unavailable")
	// ErrTokenSpaceExhausted is returned when every issue attempt collided.
	ErrTokenSpaceExhausted = errors.New("session: could not allocate a unique token")
)

// Session is the state bound to a token
type Session struct {
	Identity  string    `json:"identity"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether s has a deadline at or before now
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions by token. Create must be atomic create-if-absent.
type Store interface {
	Create(ctx context.Context, token string, s Session) (created bool, err error)
	Get(ctx context.Context, token string) (Session, bool, error)
	Delete(ctx context.Context, token string) (bool, error)
}

// Registry is the session authority used by the HTTP layer
type Registry struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

// Option configures a Registry
type Option func(*Registry)

// WithTTL sets the session lifetime. Zero means sessions live until revoked.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithTokenSource overrides token generation
func WithTokenSource(fn func() (string, error)) Option {
	return func(r *Registry) { r.newToken = fn }
}

// NewRegistry creates a registry over store
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		now:      time.Now,
		newToken: GenerateToken,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateToken returns a fresh random token
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a session for identity and returns its token
func (r *Registry) Issue(ctx context.Context, identity string) (string, error) {
	now := r.now().UTC()
	s := Session{Identity: identity, IssuedAt: now}
	if r.ttl > 0 {
		s.ExpiresAt = now.Add(r.ttl)
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := r.newToken()
		if err != nil {
			return "", err
		}
		created, err := r.store.Create(ctx, token, s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if created {
			return token, nil
		}
	}
	return "", ErrTokenSpaceExhausted
}

// Validate returns the identity bound to token
func (r *Registry) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	s, ok, err := r.store.Get(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok || s.Expired(r.now()) {
		return "", ErrInvalidToken
	}
	return s.Identity, nil
}

// Revoke ends the session for token. It reports whether a session was removed;
// revoking an unknown token is not an error.
func (r *Registry) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	removed, err := r.store.Delete(ctx, token)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed, nil
}
