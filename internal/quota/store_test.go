package quota

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quota.json")
	return NewStore(path, nil, testLogger())
}

func TestLoad_MissingFileInitializesDefaults(t *testing.T) {
	s := newTestStore(t)

	data, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := data["gemini"]["gemini-2.5-flash"]; !ok {
		t.Error("defaults missing gemini-2.5-flash")
	}

	// Second read must return the same defaults (idempotent reinit).
	again, err := s.Load()
	if err != nil {
		t.Fatalf("Load() second call error = %v", err)
	}
	if len(again["gemini"]) != len(data["gemini"]) {
		t.Errorf("second load gemini models = %d, want %d", len(again["gemini"]), len(data["gemini"]))
	}
}

func TestLoad_CorruptFileReinitializes(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := data["gemini"]; !ok {
		t.Error("corrupt file did not reinitialize defaults")
	}
}

func TestRecordUsage_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordUsage("gemini", "gemini-2.5-flash", 1234); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}

	usage := s.Usage("gemini", "gemini-2.5-flash")
	if len(usage) != 1 {
		t.Fatalf("usage records = %d, want 1", len(usage))
	}
	if usage[0].Tokens != 1234 {
		t.Errorf("tokens = %d, want 1234", usage[0].Tokens)
	}
}

func TestRecordUsage_PrunesOldRecords(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.RecordUsage("gemini", "gemini-2.5-flash", 10); err != nil {
		t.Fatal(err)
	}

	// 25 hours later the first record falls outside the retention window.
	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	if err := s.RecordUsage("gemini", "gemini-2.5-flash", 20); err != nil {
		t.Fatal(err)
	}

	usage := s.Usage("gemini", "gemini-2.5-flash")
	if len(usage) != 1 {
		t.Fatalf("usage records after prune = %d, want 1", len(usage))
	}
	if usage[0].Tokens != 20 {
		t.Errorf("surviving record tokens = %d, want 20", usage[0].Tokens)
	}
}

func TestRecordUsage_UnknownModelIgnored(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordUsage("gemini", "no-such-model", 5); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}
	if usage := s.Usage("gemini", "no-such-model"); usage != nil {
		t.Errorf("usage for unknown model = %v, want nil", usage)
	}
}

func TestFindProvider(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureModels("groq", []string{"llama-3.3-70b-versatile"}, ModelQuota{RequestsPerMinute: 30}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		model    string
		provider string
		found    bool
	}{
		{"gemini-2.5-flash", "gemini", true},
		{"llama-3.3-70b-versatile", "groq", true},
		{"mystery-model", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, found := s.FindProvider(tt.model)
			if provider != tt.provider || found != tt.found {
				t.Errorf("FindProvider(%q) = (%q, %t), want (%q, %t)",
					tt.model, provider, found, tt.provider, tt.found)
			}
		})
	}
}

func TestEnsureModels_KeepsExistingEntries(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureModels("groq", []string{"llama-3.1-8b-instant"}, ModelQuota{RequestsPerMinute: 30}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordUsage("groq", "llama-3.1-8b-instant", 7); err != nil {
		t.Fatal(err)
	}

	// Re-syncing the same model must not wipe its usage.
	if err := s.EnsureModels("groq", []string{"llama-3.1-8b-instant", "gemma2-9b-it"}, ModelQuota{RequestsPerMinute: 30}); err != nil {
		t.Fatal(err)
	}

	if usage := s.Usage("groq", "llama-3.1-8b-instant"); len(usage) != 1 {
		t.Errorf("usage records = %d, want 1", len(usage))
	}
	models := s.Models("groq")
	if len(models) != 2 {
		t.Errorf("groq models = %v, want 2 entries", models)
	}
}

func TestSetRateHeaders(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureModels("groq", []string{"llama-3.1-8b-instant"}, ModelQuota{}); err != nil {
		t.Fatal(err)
	}

	headers := map[string]string{"x-ratelimit-remaining-requests": "28"}
	if err := s.SetRateHeaders("groq", "llama-3.1-8b-instant", headers); err != nil {
		t.Fatalf("SetRateHeaders() error = %v", err)
	}

	mq, ok := s.Limits("groq", "llama-3.1-8b-instant")
	if !ok {
		t.Fatal("model disappeared")
	}
	if mq.RateHeaders["x-ratelimit-remaining-requests"] != "28" {
		t.Errorf("stored headers = %v", mq.RateHeaders)
	}
}
