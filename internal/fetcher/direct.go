package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const directMaxAttempts = 3

// directStrategy is the first rung of the cascade: a plain HTTP client with
// randomized browser-like headers. A 429 earns a randomized backoff and a
// retry inside the strategy; a 403 or a persistent 429 aborts it so the
// cascade can fall through to TLS impersonation. Connection and timeout
// errors abort immediately.
type directStrategy struct {
	client *http.Client
	logger *slog.Logger
	rng    *rand.Rand
	sleep  func(context.Context, time.Duration) error
}

func newDirectStrategy(timeout time.Duration, logger *slog.Logger) *directStrategy {
	return &directStrategy{
		client: &http.Client{Timeout: timeout},
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
}

func (s *directStrategy) Name() string { return "direct" }

func (s *directStrategy) Attempt(ctx context.Context, url string) Attempt {
	for attempt := 1; attempt <= directMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return s.fail(OutcomeError, fmt.Sprintf("building request: %v", err))
		}
		for k, v := range randomHeaders(s.rng) {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			// Connection or timeout error: no point retrying here, the
			// impersonating client may still get through.
			return s.fail(OutcomeError, fmt.Sprintf("request failed: %v", err))
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return s.fail(OutcomeError, fmt.Sprintf("reading body: %v", readErr))
			}
			return Attempt{Strategy: s.Name(), Outcome: OutcomeSuccess, Body: body}

		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if attempt < directMaxAttempts {
				wait := time.Duration(5000+s.rng.Intn(10000)) * time.Millisecond
				s.logger.Warn("direct fetch got 429, backing off",
					"url", url, "attempt", attempt, "wait", wait)
				if err := s.sleep(ctx, wait); err != nil {
					return s.fail(OutcomeError, fmt.Sprintf("backoff interrupted: %v", err))
				}
				continue
			}
			return s.fail(OutcomeBlocked, "persistent HTTP 429")

		case resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return s.fail(OutcomeBlocked, "HTTP 403")

		default:
			status := resp.StatusCode
			resp.Body.Close()
			return s.fail(OutcomeError, fmt.Sprintf("HTTP %d", status))
		}
	}
	return s.fail(OutcomeError, "attempts exhausted")
}

func (s *directStrategy) fail(outcome Outcome, diagnostic string) Attempt {
	return Attempt{Strategy: s.Name(), Outcome: outcome, Diagnostic: diagnostic}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
