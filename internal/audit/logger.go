package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/careline/careline/internal/safego"
	"github.com/careline/careline/internal/telemetry"
)

const defaultWriteTimeout = 5 * time.Second

// Logger records chat exchanges as digest pairs. Recording never blocks the
// caller and never reports failure to it: persistence errors are logged and
// counted in careline_audit_writes_total.
type Logger struct {
	digester     *Digester
	store        Store
	shipper      Shipper
	writeTimeout time.Duration
	inflight     safego.Group
}

// Option configures a Logger
type Option func(*Logger)

// WithShipper forwards every persisted entry to s as well
func WithShipper(s Shipper) Option {
	return func(l *Logger) { l.shipper = s }
}

// WithWriteTimeout bounds each background write
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// NewLogger creates a logger writing to store
func NewLogger(digester *Digester, store Store, opts ...Option) *Logger {
	l := &Logger{
		digester:     digester,
		store:        store,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Digest exposes the keyed digest so operators can look up a known query.
func (l *Logger) Digest(text string) Digest {
	return l.digester.Digest(text)
}

// Record digests query and response and writes them in the background.
// Plaintext does not leave this call; only the Entry reaches the goroutine.
func (l *Logger) Record(query, response string, when time.Time) {
	entry := &Entry{
		HashedQuery:    l.digester.Digest(query),
		HashedResponse: l.digester.Digest(response),
		Timestamp:      when.UTC(),
	}
	l.inflight.Go(func() { l.write(entry) })
}

func (l *Logger) write(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	if err := l.store.Append(ctx, entry); err != nil {
		telemetry.AuditWritesTotal.WithLabelValues("error").Inc()
		slog.Warn("audit write failed",
			"hashed_query", entry.HashedQuery.String(),
			"error", err)
		return
	}
	telemetry.AuditWritesTotal.WithLabelValues("ok").Inc()

	if l.shipper != nil {
		if err := l.shipper.Ship(ctx, entry); err != nil {
			slog.Warn("audit ship failed", "id", entry.ID, "error", err)
		}
	}
}

// Drain waits for in-flight writes until ctx expires, then closes the shipper.
func (l *Logger) Drain(ctx context.Context) error {
	err := l.inflight.Wait(ctx)
	if l.shipper != nil {
		if cerr := l.shipper.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
