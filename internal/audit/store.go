package audit

import (
	"context"
	"sync"
	"time"
)

// Entry is one persisted exchange. It holds digests only.
type Entry struct {
	ID             int64     `json:"id,omitempty"`
	HashedQuery    Digest    `json:"hashed_query"`
	HashedResponse Digest    `json:"hashed_response"`
	Timestamp      time.Time `json:"timestamp"`
}

// Store persists audit entries. Implementations accept digests only; there is
// no code path from plaintext to a Store.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// Reader is implemented by stores that support the analytics queries.
type Reader interface {
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
	ListByQueryDigest(ctx context.Context, d Digest, limit int) ([]*Entry, error)
	Count(ctx context.Context) (int64, error)
}

// MemoryStore keeps entries in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	nextID  int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Append stores a copy of entry and assigns its ID
func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *entry
	e.ID = s.nextID
	s.nextID++
	entry.ID = e.ID
	s.entries = append(s.entries, &e)
	return nil
}

// ListRecent returns up to limit entries, newest first
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := *s.entries[i]
		out = append(out, &e)
	}
	return out, nil
}

// ListByQueryDigest returns up to limit entries whose query digest matches d, newest first
func (s *MemoryStore) ListByQueryDigest(ctx context.Context, d Digest, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].HashedQuery.Equal(d) {
			e := *s.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

// Count returns the number of stored entries
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}
