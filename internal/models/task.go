package models

import (
	"time"

	"github.com/google/uuid"
)

// SummaryOptions captures the per-request knobs picked by the user.
type SummaryOptions struct {
	Variant    string `json:"variant"`
	Model      string `json:"model"`
	WebSearch  bool   `json:"web_search"`
	URLContext bool   `json:"url_context"`
}

// Task is one unit of work for a single submitted URL. Tasks are consumed by
// the single queue worker, so they are never mutated concurrently.
type Task struct {
	ID         uuid.UUID
	ChatID     int64
	URL        string
	Options    SummaryOptions
	EnqueuedAt time.Time

	// Question switches the task into Q&A mode: the pipeline skips
	// fetch/extract and answers against the supplied article and summary.
	Question string
	Article  *ArticleContent
	Summary  string
}

// NewTask builds a summarization task for a URL.
func NewTask(chatID int64, url string, opts SummaryOptions) *Task {
	return &Task{
		ID:         uuid.New(),
		ChatID:     chatID,
		URL:        url,
		Options:    opts,
		EnqueuedAt: time.Now(),
	}
}

// NewQuestionTask builds a follow-up Q&A task against an already summarized article.
func NewQuestionTask(chatID int64, question string, article *ArticleContent, summary string, opts SummaryOptions) *Task {
	t := NewTask(chatID, article.URL, opts)
	t.Question = question
	t.Article = article
	t.Summary = summary
	return t
}
