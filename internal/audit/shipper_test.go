package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/careline/careline/internal/audit"
	"github.com/careline/careline/internal/config"
)

func sampleEntry(t *testing.T) *audit.Entry {
	t.Helper()
	d, err := audit.NewDigester([]byte("shipper-test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return &audit.Entry{
		ID:             7,
		HashedQuery:    d.Digest("what are symptoms of flu?"),
		HashedResponse: d.Digest("fever and cough"),
		Timestamp:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// ---------------------------------------------------------------------------
// MultiShipper
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
	if err := ms.Ship(context.Background(), sampleEntry(t)); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_DisabledConfigSkipped(t *testing.T) {
	cfgs := []config.AuditShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: "http://example.com"}},
	}
	ms, err := audit.NewMultiShipper(cfgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
}

func TestNewMultiShipper_InvalidConfigs(t *testing.T) {
	cases := map[string]config.AuditShipperConfig{
		"unknown type":        {Enabled: true, Type: "syslog"},
		"webhook nil config":  {Enabled: true, Type: "webhook"},
		"webhook missing url": {Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{}},
		"file nil config":     {Enabled: true, Type: "file"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := audit.NewMultiShipper([]config.AuditShipperConfig{cfg}); err == nil {
				t.Errorf("expected error for %s, got nil", name)
			}
		})
	}
}

func TestMultiShipper_ContinuesAfterShipperError(t *testing.T) {
	srv1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv1.Close()

	var mu sync.Mutex
	var srv2Count int
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		srv2Count++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv2.Close()

	cfgs := []config.AuditShipperConfig{
		{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: srv1.URL, TimeoutSecs: 1}},
		{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: srv2.URL, TimeoutSecs: 1}},
	}
	ms, err := audit.NewMultiShipper(cfgs)
	if err != nil {
		t.Fatalf("NewMultiShipper error: %v", err)
	}
	defer ms.Close()

	if err := ms.Ship(context.Background(), sampleEntry(t)); err == nil {
		t.Error("Ship() = nil, want error from first shipper")
	}
	mu.Lock()
	defer mu.Unlock()
	if srv2Count != 1 {
		t.Errorf("second shipper received %d calls, want 1", srv2Count)
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipEntry(t *testing.T) {
	entry := sampleEntry(t)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if got := r.Header.Get("X-Audit-Token"); got != "abc" {
			t.Errorf("X-Audit-Token = %q, want abc", got)
		}
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Audit-Token": "abc"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper error: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(<-bodies, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["hashed_query"] != entry.HashedQuery.String() {
		t.Errorf("hashed_query = %v, want %s", got["hashed_query"], entry.HashedQuery)
	}
	if _, ok := got["query"]; ok {
		t.Error("payload must not carry a plaintext query field")
	}
}

func TestWebhookShipper_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL})
	defer ws.Close()
	if err := ws.Ship(context.Background(), sampleEntry(t)); err == nil {
		t.Error("Ship() = nil, want error for 502")
	}
}

func TestWebhookShipper_BatchFlushOnClose(t *testing.T) {
	batches := make(chan []json.RawMessage, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("batch body is not a JSON array: %v", err)
		}
		batches <- batch
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:           srv.URL,
		BatchSize:     10,
		FlushInterval: 60,
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := ws.Ship(context.Background(), sampleEntry(t)); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}
	ws.Close()

	select {
	case batch := <-batches:
		if len(batch) != 3 {
			t.Errorf("batch size = %d, want 3", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered on Close")
	}
}

func TestWebhookShipper_BatchFlushOnSize(t *testing.T) {
	batches := make(chan int, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []json.RawMessage
		json.NewDecoder(r.Body).Decode(&batch)
		batches <- len(batch)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL, BatchSize: 2, FlushInterval: 60})
	defer ws.Close()

	ws.Ship(context.Background(), sampleEntry(t))
	ws.Ship(context.Background(), sampleEntry(t))

	select {
	case n := <-batches:
		if n != 2 {
			t.Errorf("batch size = %d, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("full batch was not flushed")
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_ShipEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper error: %v", err)
	}

	entry := sampleEntry(t)
	for i := 0; i < 3; i++ {
		if err := fs.Ship(context.Background(), entry); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}
	fs.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var e audit.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not a valid entry: %v", lines, err)
		}
		if !e.HashedQuery.Equal(entry.HashedQuery) {
			t.Errorf("line %d hashed_query = %s, want %s", lines, e.HashedQuery, entry.HashedQuery)
		}
		if strings.Contains(scanner.Text(), "flu") {
			t.Errorf("line %d contains plaintext", lines)
		}
	}
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
}

func TestNewFileShipper_InvalidPath(t *testing.T) {
	_, err := audit.NewFileShipper(&config.AuditFileConfig{Path: filepath.Join(t.TempDir(), "missing", "dir", "audit.jsonl")})
	if err == nil {
		t.Error("expected error for unwritable path, got nil")
	}
}

func TestFileShipper_Rotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	// Pre-fill past the 1 MB threshold so the next Ship rotates.
	if err := os.WriteFile(path, make([]byte, 1024*1024+1), 0600); err != nil {
		t.Fatal(err)
	}

	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileShipper error: %v", err)
	}
	if err := fs.Ship(context.Background(), sampleEntry(t)); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	fs.Close()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated backup %s.1: %v", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= 1024*1024 {
		t.Errorf("current file size = %d, want fresh file", info.Size())
	}
}
