package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/careline/careline/internal/telemetry"
)

func testDigester(t *testing.T) *Digester {
	t.Helper()
	d, err := NewDigester([]byte("unit-test-secret-0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewDigester: %v", err)
	}
	return d
}

func drain(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Digest / Digester
// ---------------------------------------------------------------------------

func TestDigester_Deterministic(t *testing.T) {
	d := testDigester(t)
	a := d.Digest("What are symptoms of diabetes?")
	b := d.Digest("What are symptoms of diabetes?")
	if !a.Equal(b) || a.String() != b.String() {
		t.Errorf("same input produced %s and %s", a, b)
	}
	if len(a.String()) != 64 {
		t.Errorf("digest length = %d, want 64", len(a.String()))
	}
	if a.Equal(d.Digest("What are symptoms of asthma?")) {
		t.Error("different inputs produced the same digest")
	}
}

func TestDigester_SecretMatters(t *testing.T) {
	other, _ := NewDigester([]byte("another-secret"))
	if testDigester(t).Digest("x").Equal(other.Digest("x")) {
		t.Error("different secrets produced the same digest")
	}
}

func TestNewDigester_EmptySecret(t *testing.T) {
	if _, err := NewDigester(nil); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("NewDigester(nil) error = %v, want ErrEmptySecret", err)
	}
}

func TestParseDigest(t *testing.T) {
	good := testDigester(t).Digest("x").String()
	d, err := ParseDigest(good)
	if err != nil || d.String() != good {
		t.Errorf("ParseDigest(valid) = %v, %v", d, err)
	}

	for _, bad := range []string{"", "chest pain", strings.ToUpper(good), good[:63]} {
		if _, err := ParseDigest(bad); !errors.Is(err, ErrInvalidDigest) {
			t.Errorf("ParseDigest(%q) error = %v, want ErrInvalidDigest", bad, err)
		}
	}
}

func TestDigest_JSONRoundTrip(t *testing.T) {
	d := testDigester(t).Digest("headache")
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var back Digest
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip = %s, want %s", back, d)
	}
	if err := json.Unmarshal([]byte(`"not-a-digest"`), &back); err == nil {
		t.Error("Unmarshal accepted a malformed digest")
	}
}

// ---------------------------------------------------------------------------
// ResolveSecret
// ---------------------------------------------------------------------------

func TestResolveSecret(t *testing.T) {
	t.Run("configured secret is used", func(t *testing.T) {
		got, err := ResolveSecret("configured-secret-value-0123456789", false)
		if err != nil || string(got) != "configured-secret-value-0123456789" {
			t.Errorf("ResolveSecret() = %q, %v", got, err)
		}
	})

	t.Run("missing secret fails outside dev mode", func(t *testing.T) {
		if _, err := ResolveSecret("", false); err == nil {
			t.Error("ResolveSecret(\"\", false) expected error")
		}
	})

	t.Run("missing secret is generated in dev mode", func(t *testing.T) {
		a, err := ResolveSecret("", true)
		if err != nil || len(a) == 0 {
			t.Fatalf("ResolveSecret(\"\", true) = %q, %v", a, err)
		}
		b, _ := ResolveSecret("", true)
		if string(a) == string(b) {
			t.Error("generated secrets should differ between calls")
		}
	})
}

// ---------------------------------------------------------------------------
// Logger
// ---------------------------------------------------------------------------

func TestLogger_RecordPersistsDigestsOnly(t *testing.T) {
	store := NewMemoryStore()
	l := NewLogger(testDigester(t), store)

	query := "What are symptoms of diabetes?"
	answer := "Common symptoms include increased thirst and frequent urination."
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	l.Record(query, answer, when)
	drain(t, l)

	entries, _ := store.ListRecent(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if !e.HashedQuery.Equal(l.Digest(query)) {
		t.Errorf("HashedQuery = %s, want digest of query", e.HashedQuery)
	}
	if !e.HashedResponse.Equal(l.Digest(answer)) {
		t.Errorf("HashedResponse = %s, want digest of answer", e.HashedResponse)
	}
	if !e.Timestamp.Equal(when) || e.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v in UTC", e.Timestamp, when)
	}

	raw, _ := json.Marshal(e)
	for _, fragment := range []string{"diabetes", "thirst", "symptoms"} {
		if strings.Contains(string(raw), fragment) {
			t.Errorf("persisted entry contains plaintext fragment %q: %s", fragment, raw)
		}
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, *Entry) error { return errors.New("db down") }

func TestLogger_StoreFailureIsSwallowed(t *testing.T) {
	before := auditCounter(t, "error")
	l := NewLogger(testDigester(t), failingStore{})
	l.Record("q", "a", time.Now())
	drain(t, l)
	if after := auditCounter(t, "error"); after-before < 1 {
		t.Errorf("careline_audit_writes_total{status=error} did not increase")
	}
}

type blockingStore struct {
	release chan struct{}
}

func (s blockingStore) Append(ctx context.Context, _ *Entry) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestLogger_RecordDoesNotBlock(t *testing.T) {
	store := blockingStore{release: make(chan struct{})}
	l := NewLogger(testDigester(t), store, WithWriteTimeout(time.Second))

	done := make(chan struct{})
	go func() {
		l.Record("q", "a", time.Now())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Record blocked on a slow store")
	}
	close(store.release)
	drain(t, l)
}

type recordingShipper struct {
	mu      sync.Mutex
	entries []*Entry
	closed  bool
}

func (s *recordingShipper) Ship(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingShipper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestLogger_ShipsPersistedEntries(t *testing.T) {
	shipper := &recordingShipper{}
	l := NewLogger(testDigester(t), NewMemoryStore(), WithShipper(shipper))
	l.Record("q1", "a1", time.Now())
	l.Record("q2", "a2", time.Now())
	drain(t, l)

	shipper.mu.Lock()
	defer shipper.mu.Unlock()
	if len(shipper.entries) != 2 {
		t.Errorf("shipped = %d, want 2", len(shipper.entries))
	}
	if !shipper.closed {
		t.Error("Drain() should close the shipper")
	}
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

func TestMemoryStore_Queries(t *testing.T) {
	ctx := context.Background()
	d := testDigester(t)
	s := NewMemoryStore()

	for i, q := range []string{"flu", "cold", "flu"} {
		e := &Entry{HashedQuery: d.Digest(q), HashedResponse: d.Digest("a"), Timestamp: time.Unix(int64(i), 0)}
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
		if e.ID != int64(i+1) {
			t.Errorf("assigned ID = %d, want %d", e.ID, i+1)
		}
	}

	n, _ := s.Count(ctx)
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	recent, _ := s.ListRecent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != 3 || recent[1].ID != 2 {
		t.Errorf("ListRecent(2) ids = %v", ids(recent))
	}

	byQuery, _ := s.ListByQueryDigest(ctx, d.Digest("flu"), 10)
	if len(byQuery) != 2 || byQuery[0].ID != 3 || byQuery[1].ID != 1 {
		t.Errorf("ListByQueryDigest(flu) ids = %v", ids(byQuery))
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryStore().Append(ctx, &Entry{}); err == nil {
		t.Error("Append() with cancelled context should fail")
	}
}

func ids(entries []*Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func auditCounter(t *testing.T, status string) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 10)
	telemetry.AuditWritesTotal.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == "status" && lp.GetValue() == status {
				return dm.GetCounter().GetValue()
			}
		}
	}
	return 0
}
