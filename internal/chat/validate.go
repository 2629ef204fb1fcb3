package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxMessageLength is the message limit in runes when none is configured
const DefaultMaxMessageLength = 1000

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// ValidationError is a malformed chat message. It maps to 422.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateMessage trims msg and rejects empty, oversized or script-bearing input
func ValidateMessage(msg string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}

	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", &ValidationError{Field: "message", Message: "Message cannot be empty"}
	}
	if utf8.RuneCountInString(msg) > maxLen {
		return "", &ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("Message is too long. Please keep it under %d characters.", maxLen),
		}
	}
	for _, p := range suspiciousPatterns {
		if p.MatchString(msg) {
			return "", &ValidationError{Field: "message", Message: "Message contains invalid content"}
		}
	}
	return msg, nil
}
