package generator

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/careline/careline/pkg/checksum"
)

// DefaultSystemPrompt is used when no prompt file is present
const DefaultSystemPrompt = "You are a healthcare AI assistant. Only respond to healthcare-related queries. " +
	"If a question is not about health or medicine, reply exactly: " +
	"\"Sorry, I can only assist with healthcare-related queries.\""

// LoadSystemPrompt reads the policy prompt from path. A missing file or empty path
// yields DefaultSystemPrompt; other read errors are returned.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("system prompt file not found, using built-in prompt", "path", path)
		return DefaultSystemPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		slog.Warn("system prompt file is empty, using built-in prompt", "path", path)
		return DefaultSystemPrompt, nil
	}

	// the fingerprint lets operators confirm which prompt revision a replica runs
	sum, err := checksum.CalculateSHA256(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	slog.Info("system prompt loaded", "path", path, "sha256", sum[:12], "bytes", len(data))
	return prompt, nil
}
