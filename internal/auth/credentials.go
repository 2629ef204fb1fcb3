// Package auth verifies login credentials for the chat gateway. Credentials are seeded at
// startup from configuration (bcrypt verifiers) plus the optional demo accounts and are
// immutable afterwards. Session tokens are handled by internal/session.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/careline/careline/internal/config"
)

// MinPasswordLength is the shortest accepted password after trimming. It matches the
// min tag on the login request body.
const MinPasswordLength = 3

var validate = validator.New()

// DemoCredentials are the built-in accounts enabled by auth.demo_users_enabled
var DemoCredentials = map[string]string{
	"demo@healthcare.com": "demo123",
	"user@example.com":    "password123",
}

// ErrDuplicateCredential is returned when two configured credentials share an email
var ErrDuplicateCredential = errors.New("duplicate credential email")

// CredentialStore holds the bcrypt verifier for every registered email
type CredentialStore struct {
	verifiers map[string][]byte
	// dummy is compared against for unknown emails so both failure paths cost one bcrypt comparison
	dummy []byte
}

// NewCredentialStore builds the store from configuration. Demo accounts are hashed at
// cfg.BcryptCost when enabled; provisioned credentials must already be bcrypt hashes.
func NewCredentialStore(cfg config.AuthConfig) (*CredentialStore, error) {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("careline-unknown-user"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to create dummy verifier: %w", err)
	}

	s := &CredentialStore{
		verifiers: make(map[string][]byte),
		dummy:     dummy,
	}

	for _, c := range cfg.Credentials {
		email := NormalizeEmail(c.Email)
		if err := validate.Var(email, "required,email"); err != nil {
			return nil, fmt.Errorf("credential %q: invalid email address", c.Email)
		}
		if _, exists := s.verifiers[email]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCredential, email)
		}
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return nil, fmt.Errorf("credential %s: password_hash is not a bcrypt hash: %w", email, err)
		}
		s.verifiers[email] = []byte(c.PasswordHash)
	}

	if cfg.DemoUsersEnabled {
		for email, password := range DemoCredentials {
			if _, exists := s.verifiers[email]; exists {
				continue
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash demo credential: %w", err)
			}
			s.verifiers[email] = hash
		}
		slog.Warn("demo credentials enabled; disable auth.demo_users_enabled in production")
	}

	return s, nil
}

// Verify reports whether password matches the verifier registered for email.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *CredentialStore) Verify(email, password string) bool {
	verifier, ok := s.verifiers[NormalizeEmail(email)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(verifier, []byte(password)) == nil
}

// Len returns the number of registered credentials
func (s *CredentialStore) Len() int {
	return len(s.verifiers)
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
