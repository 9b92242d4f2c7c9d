package llm

import (
	"context"
	"fmt"
)

// Provider name keys. These double as the top-level keys in the quota file.
const (
	ProviderGemini     = "gemini"
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
)

// Request is a single completion request, already rendered into system and
// user parts.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	WebSearch   bool
}

// Result is a successful completion.
type Result struct {
	Text string
	// Tokens is the total token count the provider reported, or zero when
	// the provider publishes no accounting.
	Tokens int
	// Headers holds provider rate-limit response headers worth persisting.
	Headers map[string]string
}

// Provider is one upstream LLM API.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req Request) (*Result, error)
	ListModels(ctx context.Context) ([]string, error)
}

// APIError is a failed upstream call. Transient errors are worth retrying
// with backoff; the rest fail the request immediately.
type APIError struct {
	Provider  string
	Status    int
	Message   string
	Transient bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Message)
}

// transientStatus reports whether an HTTP status from any provider is worth
// retrying.
func transientStatus(status int) bool {
	switch status {
	case 429, 500, 503:
		return true
	}
	return false
}

// RetryExhaustedError means every dispatch attempt hit a transient failure.
// The task should be surfaced to the user as retryable.
type RetryExhaustedError struct {
	Provider string
	Model    string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s/%s: %d attempts exhausted: %v", e.Provider, e.Model, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }
