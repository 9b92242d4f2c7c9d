package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AuthStore persists the set of chats that have presented the bot password.
// The file is rewritten wholesale on every change, like the quota file.
type AuthStore struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	chats map[int64]bool
}

type authFile struct {
	Authorized []int64 `json:"authorized"`
}

func NewAuthStore(path string, logger *slog.Logger) (*AuthStore, error) {
	s := &AuthStore{path: path, logger: logger, chats: make(map[int64]bool)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading auth file: %w", err)
	}

	var data authFile
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Warn("auth file corrupt, starting empty", "path", path, "error", err)
		return s, nil
	}
	for _, id := range data.Authorized {
		s.chats[id] = true
	}
	return s, nil
}

func (s *AuthStore) IsAuthorized(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[chatID]
}

func (s *AuthStore) Authorize(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chats[chatID] {
		return nil
	}
	s.chats[chatID] = true
	return s.save()
}

func (s *AuthStore) save() error {
	data := authFile{Authorized: make([]int64, 0, len(s.chats))}
	for id := range s.chats {
		data.Authorized = append(data.Authorized, id)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, raw, 0o600)
}
