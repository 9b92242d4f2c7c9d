package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/linkbrief/linkbrief/internal/metrics"
	"github.com/linkbrief/linkbrief/internal/quota"
)

const dispatchAttempts = 4

// backoffSchedule is the wait before retry N+1 on a transient failure. The
// final attempt has no wait after it.
var backoffSchedule = [dispatchAttempts - 1]time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// providerPrefixes maps the display prefix a model name may carry to the
// provider key.
var providerPrefixes = map[string]string{
	"Gemini: ":     ProviderGemini,
	"Groq: ":       ProviderGroq,
	"OpenRouter: ": ProviderOpenRouter,
}

// Dispatcher routes a request to the right provider, holds it until the
// local rate limiter admits it, retries transient failures with backoff, and
// records usage on success.
type Dispatcher struct {
	providers map[string]Provider
	store     *quota.Store
	limiter   *quota.Limiter
	logger    *slog.Logger
	primary   string

	sleep func(context.Context, time.Duration) error
}

// DispatcherOption adjusts dispatcher behavior, mainly for tests.
type DispatcherOption func(*Dispatcher)

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = sleep }
}

func NewDispatcher(providers []Provider, store *quota.Store, limiter *quota.Limiter, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	d := &Dispatcher{
		providers: byName,
		store:     store,
		limiter:   limiter,
		logger:    logger,
		primary:   ProviderGemini,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ResolveModel maps a user-facing model name to a provider key and the bare
// model name. Prefixed names ("Groq: llama-3.3-70b") resolve directly;
// unprefixed names are looked up across the quota tables; anything unknown
// goes to the primary provider.
func (d *Dispatcher) ResolveModel(name string) (provider, model string) {
	for prefix, p := range providerPrefixes {
		if strings.HasPrefix(name, prefix) {
			return p, strings.TrimPrefix(name, prefix)
		}
	}
	if p, ok := d.store.FindProvider(name); ok {
		return p, name
	}
	return d.primary, name
}

// Generate runs req.Model through resolution, rate limiting and the retry
// loop. Usage is recorded only for the attempt that succeeds.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (*Result, error) {
	providerName, model := d.ResolveModel(req.Model)
	provider, ok := d.providers[providerName]
	if !ok {
		return nil, &APIError{Provider: providerName, Message: "provider not configured"}
	}
	req.Model = model

	var lastErr error
	for attempt := 1; attempt <= dispatchAttempts; attempt++ {
		if err := d.limiter.Wait(ctx, providerName, model); err != nil {
			return nil, err
		}

		result, err := provider.Invoke(ctx, req)
		if err == nil {
			metrics.ProviderCalls.WithLabelValues(providerName, "success").Inc()
			d.recordSuccess(providerName, model, result)
			return result, nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.Transient {
			metrics.ProviderCalls.WithLabelValues(providerName, "fatal").Inc()
			return nil, err
		}
		metrics.ProviderCalls.WithLabelValues(providerName, "transient").Inc()
		if attempt == dispatchAttempts {
			break
		}

		wait := backoffSchedule[attempt-1]
		d.logger.Warn("provider call failed, backing off",
			"provider", providerName, "model", model,
			"attempt", attempt, "wait", wait, "error", err)
		if err := d.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &RetryExhaustedError{
		Provider: providerName,
		Model:    model,
		Attempts: dispatchAttempts,
		Last:     lastErr,
	}
}

func (d *Dispatcher) recordSuccess(provider, model string, result *Result) {
	if err := d.store.RecordUsage(provider, model, result.Tokens); err != nil {
		d.logger.Error("failed to record usage", "provider", provider, "model", model, "error", err)
	}
	if len(result.Headers) > 0 {
		if err := d.store.SetRateHeaders(provider, model, result.Headers); err != nil {
			d.logger.Error("failed to store rate-limit headers", "provider", provider, "model", model, "error", err)
		}
	}
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
