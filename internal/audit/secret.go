package audit

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
)

// ErrEmptySecret is returned when no secret is available to key audit digests.
var ErrEmptySecret = errors.New("audit: secret must not be empty")

// minSecretLen is the recommended minimum APP_SECRET length.
const minSecretLen = 32

// ResolveSecret returns the configured secret. When none is configured,
// development mode gets a random per-process secret and a warning; anything
// else fails so digests are never keyed by a guessable default.
func ResolveSecret(configured string, devMode bool) ([]byte, error) {
	if configured == "" {
		if !devMode {
			return nil, errors.New("SECURITY ERROR: APP_SECRET environment variable is required in production. " +
				"Generate a secure secret with: go run scripts/generate-key.go")
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		slog.Warn("APP_SECRET not set; using an auto-generated secret for development",
			"consequence", "audit digests will not be comparable across restarts")
		return []byte(hex.EncodeToString(buf)), nil
	}

	if len(configured) < minSecretLen {
		slog.Warn("APP_SECRET is shorter than recommended", "min_length", minSecretLen)
	}
	return []byte(configured), nil
}
