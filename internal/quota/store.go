package quota

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const usageRetention = 24 * time.Hour

// UsageRecord is one provider call. Records are append-only; the store prunes
// entries older than the retention window on every write.
type UsageRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
}

// ModelQuota holds the configured limits and the recent usage log for one
// (provider, model) pair. A zero or absent limit means unlimited.
type ModelQuota struct {
	RequestsPerMinute int               `json:"requests_per_minute,omitempty"`
	TokensPerMinute   int               `json:"tokens_per_minute,omitempty"`
	RequestsPerDay    int               `json:"requests_per_day,omitempty"`
	Usage             []UsageRecord     `json:"usage_timestamps"`
	RateHeaders       map[string]string `json:"rate_limit_headers,omitempty"`
}

// File is the on-disk shape: provider -> model -> quota.
type File map[string]map[string]ModelQuota

// Store is the durable record of per-model limits and usage. The whole file is
// read and rewritten under a single lock on every mutation, so readers never
// observe a partial write. Public methods lock once and delegate to unexported
// helpers that assume the lock is held.
type Store struct {
	path     string
	defaults func() File
	logger   *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a store backed by the JSON file at path. The defaults
// function seeds the file when it is missing or corrupt.
func NewStore(path string, defaults func() File, logger *slog.Logger) *Store {
	if defaults == nil {
		defaults = DefaultFile
	}
	return &Store{
		path:     path,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// DefaultFile returns the built-in model set used when no quota file exists.
func DefaultFile() File {
	return File{
		"gemini": {
			"gemini-2.5-flash": {
				RequestsPerMinute: 10,
				TokensPerMinute:   250000,
				RequestsPerDay:    250,
				Usage:             []UsageRecord{},
			},
			"gemini-2.0-flash": {
				RequestsPerMinute: 15,
				TokensPerMinute:   1000000,
				RequestsPerDay:    200,
				Usage:             []UsageRecord{},
			},
		},
		"groq":       {},
		"openrouter": {},
	}
}

// Load returns the full quota file, reinitializing it with defaults when it is
// missing or unreadable. Reinitialization is idempotent.
func (s *Store) Load() (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (File, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading quota file: %w", err)
		}
		s.logger.Warn("quota file missing, initializing defaults", "path", s.path)
		return s.initialize()
	}

	var data File
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("quota file corrupt, reinitializing", "path", s.path, "error", err)
		return s.initialize()
	}
	return data, nil
}

func (s *Store) initialize() (File, error) {
	data := s.defaults()
	if err := s.save(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) save(data File) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating quota dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding quota data: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("writing quota file: %w", err)
	}
	return nil
}

// Limits returns the quota entry for a model, and whether the model is known.
func (s *Store) Limits(provider, model string) (ModelQuota, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return ModelQuota{}, false
	}
	mq, ok := data[provider][model]
	return mq, ok
}

// RecordUsage appends a usage record for a model and prunes records older than
// the retention window. Unknown models are ignored.
func (s *Store) RecordUsage(provider, model string, tokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	mq, ok := data[provider][model]
	if !ok {
		return nil
	}

	now := s.now()
	mq.Usage = append(mq.Usage, UsageRecord{Timestamp: now.UTC(), Tokens: tokens})
	mq.Usage = pruneUsage(mq.Usage, now)
	data[provider][model] = mq

	return s.save(data)
}

func pruneUsage(records []UsageRecord, now time.Time) []UsageRecord {
	kept := records[:0]
	for _, r := range records {
		if now.Sub(r.Timestamp) < usageRetention {
			kept = append(kept, r)
		}
	}
	return kept
}

// Usage returns the usage records currently on file for a model.
func (s *Store) Usage(provider, model string) []UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil
	}
	mq, ok := data[provider][model]
	if !ok {
		return nil
	}
	out := make([]UsageRecord, len(mq.Usage))
	copy(out, mq.Usage)
	return out
}

// UsageLastMinute counts calls recorded within the trailing minute.
func (s *Store) UsageLastMinute(provider, model string) int {
	now := s.now()
	var n int
	for _, r := range s.Usage(provider, model) {
		if now.Sub(r.Timestamp) <= time.Minute {
			n++
		}
	}
	return n
}

// SetRateHeaders stores provider-reported rate-limit headers on a model entry.
func (s *Store) SetRateHeaders(provider, model string, headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	mq, ok := data[provider][model]
	if !ok {
		return nil
	}
	mq.RateHeaders = headers
	data[provider][model] = mq
	return s.save(data)
}

// FindProvider reports which provider's model table contains the given model.
func (s *Store) FindProvider(model string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", false
	}
	// Deterministic resolution order when a name appears in several tables.
	for _, provider := range []string{"gemini", "groq", "openrouter"} {
		if _, ok := data[provider][model]; ok {
			return provider, true
		}
	}
	return "", false
}

// Models lists the model names known for a provider, sorted.
func (s *Store) Models(provider string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(data[provider]))
	for name := range data[provider] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnsureModels adds any missing models for a provider, seeding each with the
// given quota template. Existing entries are left untouched.
func (s *Store) EnsureModels(provider string, names []string, template ModelQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if data[provider] == nil {
		data[provider] = map[string]ModelQuota{}
	}

	var added bool
	for _, name := range names {
		if _, ok := data[provider][name]; ok {
			continue
		}
		mq := template
		mq.Usage = []UsageRecord{}
		data[provider][name] = mq
		added = true
	}
	if !added {
		return nil
	}
	return s.save(data)
}
