package telegram

import (
	"sync"

	"github.com/linkbrief/linkbrief/internal/models"
)

// chatPrefs is what a chat has picked through the keyboards. Zero values
// mean "use the configured defaults".
type chatPrefs struct {
	Model      string
	Variant    string
	WebSearch  bool
	URLContext bool
}

// prefsStore keeps per-chat selections for the process lifetime. Choices
// are conveniences, not data worth persisting.
type prefsStore struct {
	mu    sync.Mutex
	prefs map[int64]chatPrefs
}

func newPrefsStore() *prefsStore {
	return &prefsStore{prefs: make(map[int64]chatPrefs)}
}

func (s *prefsStore) get(chatID int64) chatPrefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[chatID]
}

func (s *prefsStore) update(chatID int64, fn func(*chatPrefs)) chatPrefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.prefs[chatID]
	fn(&p)
	s.prefs[chatID] = p
	return p
}

// options maps a chat's preferences onto task options.
func (s *prefsStore) options(chatID int64) models.SummaryOptions {
	p := s.get(chatID)
	return models.SummaryOptions{
		Model:      p.Model,
		Variant:    p.Variant,
		WebSearch:  p.WebSearch,
		URLContext: p.URLContext,
	}
}
