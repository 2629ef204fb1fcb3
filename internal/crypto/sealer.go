// Package crypto provides AES-256-GCM authenticated encryption for session
// identities held in a shared store. Each sealed value is bound to caller-supplied
// associated data (the hashed token) so a record copied under another key fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrKeyLengthInvalid is returned when a key is not exactly 32 bytes (required for AES-256).
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrSecretEmpty is returned when key derivation is asked to stretch an empty secret.
	ErrSecretEmpty = errors.New("crypto: secret must not be empty")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding or is too short to contain a nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when AES-GCM authentication fails, indicating tampering, a wrong key or wrong associated data.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
)

// Sealer encrypts and decrypts short values
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32-byte key
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// DeriveSealer derives a purpose-specific key from the process secret with HKDF-SHA256.
// Distinct purposes yield independent keys from the same secret.
func DeriveSealer(secret []byte, purpose string) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, ErrSecretEmpty
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// Seal encrypts plaintext bound to ad and returns base64url(nonce||ciphertext)
func (s *Sealer) Seal(plaintext, ad string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(ad))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. ad must match the value given to Seal.
func (s *Sealer) Open(encoded, ad string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return "", ErrCiphertextCorrupted
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(ad))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey creates a cryptographically secure random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
