package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// impersonateStrategy presents a real Chrome TLS fingerprint to defeat
// fingerprint-based blocking. Single attempt: either the disguise works or
// it doesn't.
type impersonateStrategy struct {
	timeout time.Duration
	logger  *slog.Logger
}

func newImpersonateStrategy(timeout time.Duration, logger *slog.Logger) *impersonateStrategy {
	return &impersonateStrategy{timeout: timeout, logger: logger}
}

func (s *impersonateStrategy) Name() string { return "tls-impersonate" }

func (s *impersonateStrategy) Attempt(ctx context.Context, url string) Attempt {
	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(s.timeout.Seconds())),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithRandomTLSExtensionOrder(),
	}
	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), opts...)
	if err != nil {
		return s.fail(OutcomeError, fmt.Sprintf("creating client: %v", err))
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, url, nil)
	if err != nil {
		return s.fail(OutcomeError, fmt.Sprintf("building request: %v", err))
	}
	req.Header = fhttp.Header{
		"accept":          {baseHeaders["Accept"]},
		"accept-language": {baseHeaders["Accept-Language"]},
		"user-agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	}

	resp, err := client.Do(req)
	if err != nil {
		return s.fail(OutcomeError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case fhttp.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return s.fail(OutcomeError, fmt.Sprintf("reading body: %v", readErr))
		}
		return Attempt{Strategy: s.Name(), Outcome: OutcomeSuccess, Body: body}
	case fhttp.StatusForbidden, fhttp.StatusTooManyRequests:
		return s.fail(OutcomeBlocked, fmt.Sprintf("blocked with HTTP %d", resp.StatusCode))
	default:
		return s.fail(OutcomeError, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
}

func (s *impersonateStrategy) fail(outcome Outcome, diagnostic string) Attempt {
	return Attempt{Strategy: s.Name(), Outcome: outcome, Diagnostic: diagnostic}
}
