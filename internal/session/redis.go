package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careline/careline/internal/crypto"
	"github.com/careline/careline/pkg/checksum"
)

// RedisStore shares sessions between replicas. Keys hold the SHA-256 of the
// token and values hold the identity sealed under a key derived from the process
// secret, so a Redis dump yields neither usable tokens nor user emails.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	sealer *crypto.Sealer
	now    func() time.Time
}

type redisRecord struct {
	SealedIdentity string    `json:"sid"`
	IssuedAt       time.Time `json:"iat"`
	ExpiresAt      time.Time `json:"exp,omitzero"`
}

// NewRedisStore creates a store using keys under prefix
func NewRedisStore(client redis.UniversalClient, prefix string, sealer *crypto.Sealer) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, sealer: sealer, now: time.Now}
}

func (s *RedisStore) key(token string) (key, digest string) {
	digest = checksum.SHA256Hex(token)
	return s.prefix + "session:" + digest, digest
}

// Create stores sess with SET NX and a TTL matching the session deadline
func (s *RedisStore) Create(ctx context.Context, token string, sess Session) (bool, error) {
	key, digest := s.key(token)

	sealed, err := s.sealer.Seal(sess.Identity, digest)
	if err != nil {
		return false, fmt.Errorf("seal identity: %w", err)
	}
	payload, err := json.Marshal(redisRecord{
		SealedIdentity: sealed,
		IssuedAt:       sess.IssuedAt,
		ExpiresAt:      sess.ExpiresAt,
	})
	if err != nil {
		return false, err
	}

	var ttl time.Duration
	if !sess.ExpiresAt.IsZero() {
		ttl = sess.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return false, fmt.Errorf("session already expired")
		}
	}
	return s.client.SetNX(ctx, key, payload, ttl).Result()
}

// Get loads and opens the session for token
func (s *RedisStore) Get(ctx context.Context, token string) (Session, bool, error) {
	key, digest := s.key(token)

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Session{}, false, fmt.Errorf("corrupt session record: %w", err)
	}
	identity, err := s.sealer.Open(rec.SealedIdentity, digest)
	if err != nil {
		return Session{}, false, fmt.Errorf("open session record: %w", err)
	}
	return Session{Identity: identity, IssuedAt: rec.IssuedAt, ExpiresAt: rec.ExpiresAt}, true, nil
}

// Delete removes the session for token
func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	key, _ := s.key(token)
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
