package audit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/careline/careline/pkg/checksum"
)

// ErrInvalidDigest is returned when a string is not a well-formed digest.
var ErrInvalidDigest = errors.New("audit: invalid digest")

// Digest is a keyed, non-reversible fingerprint of a chat message. Values are
// produced only by a Digester or by ParseDigest, so a Digest can never carry
// the plaintext it was derived from.
type Digest struct {
	hex string
}

// ParseDigest validates s as a 64-character lower-case hex digest.
func ParseDigest(s string) (Digest, error) {
	if !checksum.IsHexDigest(s) {
		return Digest{}, fmt.Errorf("%w: %q", ErrInvalidDigest, s)
	}
	return Digest{hex: s}, nil
}

// String returns the hex form.
func (d Digest) String() string { return d.hex }

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool { return d.hex == "" }

// Equal compares two digests in constant time.
func (d Digest) Equal(o Digest) bool { return checksum.Equal(d.hex, o.hex) }

// MarshalJSON encodes the digest as a JSON string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.hex)
}

// UnmarshalJSON decodes and validates a JSON string digest.
func (d *Digest) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDigest(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Digester derives HMAC-SHA256 digests under the process secret.
type Digester struct {
	key []byte
}

// NewDigester creates a digester keyed by secret.
func NewDigester(secret []byte) (*Digester, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Digester{key: key}, nil
}

// Digest returns the keyed digest of text. Identical inputs under the same
// secret always produce the same digest.
func (d *Digester) Digest(text string) Digest {
	return Digest{hex: checksum.HMACSHA256Hex(d.key, text)}
}
