package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// testKey returns a valid 32-byte key for use in tests.
func testKey() []byte {
	return bytes.Repeat([]byte("k"), 32)
}

func TestNewSealer(t *testing.T) {
	if _, err := NewSealer(testKey()); err != nil {
		t.Fatalf("NewSealer() unexpected error: %v", err)
	}

	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewSealer(make([]byte, n)); !errors.Is(err, ErrKeyLengthInvalid) {
			t.Errorf("NewSealer(len=%d) error = %v, want ErrKeyLengthInvalid", n, err)
		}
	}
}

func TestSealAndOpen(t *testing.T) {
	s, _ := NewSealer(testKey())

	tests := []string{"demo@healthcare.com", "", "ünïcödé@example.org"}
	for _, plaintext := range tests {
		sealed, err := s.Seal(plaintext, "ad-1")
		if err != nil {
			t.Fatalf("Seal(%q) error: %v", plaintext, err)
		}
		if plaintext != "" && bytes.Contains([]byte(sealed), []byte(plaintext)) {
			t.Errorf("sealed value contains plaintext %q", plaintext)
		}
		got, err := s.Open(sealed, "ad-1")
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		if got != plaintext {
			t.Errorf("Open() = %q, want %q", got, plaintext)
		}
	}
}

func TestSealNonDeterministic(t *testing.T) {
	s, _ := NewSealer(testKey())
	a, _ := s.Seal("same", "ad")
	b, _ := s.Seal("same", "ad")
	if a == b {
		t.Error("Seal() produced identical ciphertexts for the same plaintext")
	}
}

func TestOpenErrors(t *testing.T) {
	s, _ := NewSealer(testKey())
	sealed, _ := s.Seal("nurse@clinic.org", "token-hash-a")

	t.Run("wrong associated data", func(t *testing.T) {
		if _, err := s.Open(sealed, "token-hash-b"); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := NewSealer(bytes.Repeat([]byte("x"), 32))
		if _, err := other.Open(sealed, "token-hash-a"); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
		}
	})

	t.Run("not base64", func(t *testing.T) {
		if _, err := s.Open("!!!", "token-hash-a"); !errors.Is(err, ErrCiphertextCorrupted) {
			t.Errorf("Open() error = %v, want ErrCiphertextCorrupted", err)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := s.Open("AAAA", "token-hash-a"); !errors.Is(err, ErrCiphertextCorrupted) {
			t.Errorf("Open() error = %v, want ErrCiphertextCorrupted", err)
		}
	})
}

func TestDeriveSealer(t *testing.T) {
	secret := []byte("process-secret")

	a, err := DeriveSealer(secret, "sessions")
	if err != nil {
		t.Fatalf("DeriveSealer() error: %v", err)
	}
	b, _ := DeriveSealer(secret, "sessions")
	other, _ := DeriveSealer(secret, "something-else")

	sealed, _ := a.Seal("demo@healthcare.com", "ad")
	if got, err := b.Open(sealed, "ad"); err != nil || got != "demo@healthcare.com" {
		t.Errorf("same secret and purpose should open: got %q, err %v", got, err)
	}
	if _, err := other.Open(sealed, "ad"); err == nil {
		t.Error("different purpose opened a sealed value")
	}

	if _, err := DeriveSealer(nil, "sessions"); !errors.Is(err, ErrSecretEmpty) {
		t.Errorf("DeriveSealer(nil) error = %v, want ErrSecretEmpty", err)
	}
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if len(k1) != 32 {
		t.Errorf("GenerateKey() len = %d, want 32", len(k1))
	}
	k2, _ := GenerateKey()
	if bytes.Equal(k1, k2) {
		t.Error("GenerateKey() returned the same key twice")
	}
}
