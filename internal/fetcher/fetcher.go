package fetcher

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Outcome classifies a single strategy attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeBlocked
	OutcomeError
)

// Attempt records what one strategy did for one URL. Attempts are immutable;
// the cascade accumulates them for diagnostics when every strategy fails.
type Attempt struct {
	Strategy   string
	Outcome    Outcome
	Body       []byte
	Diagnostic string
}

// Strategy is one way of retrieving raw page bytes.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, url string) Attempt
}

// ErrorKind distinguishes anti-bot blocking from plain network failure.
type ErrorKind int

const (
	KindBlocked ErrorKind = iota
	KindNetwork
)

// Error is the terminal failure of the whole cascade, carrying every attempt's
// diagnostic for operator visibility.
type Error struct {
	Kind     ErrorKind
	Attempts []Attempt
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Strategy+": "+a.Diagnostic)
	}
	return "all fetch strategies failed: " + strings.Join(parts, "; ")
}

// Fetcher runs an ordered cascade of retrieval strategies and stops at the
// first one that returns a body.
type Fetcher struct {
	strategies []Strategy
	logger     *slog.Logger
}

// Options selects which strategies join the cascade.
type Options struct {
	Timeout         time.Duration
	BrowserEndpoint string
}

// New builds the default cascade: direct HTTP, then TLS impersonation, then
// the remote headless browser when an endpoint is configured.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	strategies := []Strategy{
		newDirectStrategy(opts.Timeout, logger),
		newImpersonateStrategy(opts.Timeout, logger),
	}
	if opts.BrowserEndpoint != "" {
		strategies = append(strategies, newBrowserStrategy(opts.BrowserEndpoint, logger))
	}
	return NewWithStrategies(strategies, logger)
}

// NewWithStrategies builds a fetcher with an explicit strategy order.
func NewWithStrategies(strategies []Strategy, logger *slog.Logger) *Fetcher {
	return &Fetcher{strategies: strategies, logger: logger}
}

// Fetch tries each strategy in order and returns the first successful body
// along with the name of the strategy that produced it. On total failure it
// returns an *Error holding every attempt.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	attempts := make([]Attempt, 0, len(f.strategies))

	for _, s := range f.strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{
				Strategy:   s.Name(),
				Outcome:    OutcomeError,
				Diagnostic: err.Error(),
			})
			break
		}

		attempt := s.Attempt(ctx, url)
		if attempt.Outcome == OutcomeSuccess {
			f.logger.Info("fetch succeeded", "url", url, "strategy", s.Name())
			return attempt.Body, s.Name(), nil
		}

		f.logger.Warn("fetch strategy failed, falling through",
			"url", url, "strategy", s.Name(), "diagnostic", attempt.Diagnostic)
		attempt.Body = nil
		attempts = append(attempts, attempt)
	}

	return nil, "", &Error{Kind: classify(attempts), Attempts: attempts}
}

func classify(attempts []Attempt) ErrorKind {
	for _, a := range attempts {
		if a.Outcome == OutcomeBlocked {
			return KindBlocked
		}
	}
	return KindNetwork
}
