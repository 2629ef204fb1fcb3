// Package generator produces candidate answers for admitted chat turns. The gateway talks
// to an OpenAI-compatible chat-completions endpoint; when no credentials are configured or
// the backend fails, callers substitute Fallback so a turn always completes.
package generator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/careline/careline/internal/config"
)

// ErrUnavailable covers every reason the backend could not produce an answer:
// no credentials, network failure, timeout, non-2xx status or an empty completion.
var ErrUnavailable = errors.New("generator: backend unavailable")

// Request is a single generation call
type Request struct {
	Query        string
	PolicyPrompt string
}

// Generator produces an answer for an admitted query. Callers bound ctx with their timeout.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Unconfigured is the generator used when no backend credentials exist
type Unconfigured struct{}

// Generate always reports ErrUnavailable
func (Unconfigured) Generate(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

// New selects the generator for cfg
func New(cfg config.GeneratorConfig) Generator {
	if cfg.Provider != "openai" || cfg.APIKey == "" {
		slog.Warn("response generator not configured; answering with fallback text", "provider", cfg.Provider)
		return Unconfigured{}
	}
	slog.Info("response generator configured", "provider", cfg.Provider, "model", cfg.Model)
	return NewOpenAIClient(cfg)
}
