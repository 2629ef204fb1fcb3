package session

import (
	"context"
	"sync"
	"time"

	"github.com/careline/careline/internal/safego"
	"github.com/careline/careline/internal/telemetry"
)

// MemoryStore keeps sessions in a mutex-guarded map. Sessions do not survive a
// restart and are not shared between replicas.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// StartJanitor removes expired sessions every interval until Stop is called
func (m *MemoryStore) StartJanitor(interval time.Duration) {
	safego.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopCh:
				return
			}
		}
	})
}

// Stop halts the janitor
func (m *MemoryStore) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *MemoryStore) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
		}
	}
	telemetry.ActiveSessions.Set(float64(len(m.sessions)))
}

// Create stores s under token unless the token is already taken
func (m *MemoryStore) Create(_ context.Context, token string, s Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[token]; exists {
		return false, nil
	}
	m.sessions[token] = s
	telemetry.ActiveSessions.Set(float64(len(m.sessions)))
	return true, nil
}

// Get returns the session for token
func (m *MemoryStore) Get(_ context.Context, token string) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	return s, ok, nil
}

// Delete removes token and reports whether it was present
func (m *MemoryStore) Delete(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return false, nil
	}
	delete(m.sessions, token)
	telemetry.ActiveSessions.Set(float64(len(m.sessions)))
	return true, nil
}

// Len returns the number of held sessions, including expired ones not yet swept
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
