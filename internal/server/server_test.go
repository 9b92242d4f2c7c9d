package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkbrief/linkbrief/internal/models"
	"github.com/linkbrief/linkbrief/internal/queue"
	"github.com/linkbrief/linkbrief/internal/quota"
)

func newTestServer(t *testing.T) (*Server, *queue.Queue, *quota.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := quota.NewStore(filepath.Join(t.TempDir(), "quota.json"), nil, logger)
	q := queue.New(func(context.Context, *models.Task) {}, time.Minute, logger)
	return New("0", q, store, logger), q, store
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStats(t *testing.T) {
	s, q, store := newTestServer(t)

	// A pending task and one recorded call show up in the snapshot.
	q.Submit(models.NewTask(1, "https://example.com/a", models.SummaryOptions{}))
	if err := store.RecordUsage("gemini", "gemini-2.5-flash", 100); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.QueueDepth != 1 {
		t.Errorf("QueueDepth = %d, want 1", body.QueueDepth)
	}
	flash := body.Providers["gemini"]["gemini-2.5-flash"]
	if flash.UsedLastMinute != 1 || flash.RequestsPerMinute != 10 {
		t.Errorf("gemini-2.5-flash stats = %+v", flash)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics body")
	}
}
