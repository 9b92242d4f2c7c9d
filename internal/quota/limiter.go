package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	windowSize   = time.Minute
	safetyMargin = time.Second
)

// Limiter is in-memory sliding-window admission control for provider calls.
// The window state is process-local and deliberately not persisted: a restart
// resets throttling memory, while the Store remains the durable usage record.
type Limiter struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	windows map[string][]time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter creates a limiter that reads per-model limits from the store.
func NewLimiter(store *Store, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:   store,
		logger:  logger,
		windows: make(map[string][]time.Time),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Wait blocks until a call for (provider, model) is admissible under the
// model's requests-per-minute limit. Models with a zero or unknown limit are
// exempt. The wait suspends only the calling task.
func (l *Limiter) Wait(ctx context.Context, provider, model string) error {
	limits, ok := l.store.Limits(provider, model)
	if !ok || limits.RequestsPerMinute <= 0 {
		return nil
	}
	limit := limits.RequestsPerMinute
	key := provider + ":" + model

	l.mu.Lock()
	now := l.now()
	window := pruneWindow(l.windows[key], now)
	l.windows[key] = window

	var wait time.Duration
	if len(window) >= limit {
		wait = windowSize - now.Sub(window[0]) + safetyMargin
	}
	l.mu.Unlock()

	if wait > 0 {
		l.logger.Info("rate limit reached, waiting",
			"provider", provider, "model", model, "wait", wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.windows[key] = append(l.windows[key], l.now())
	l.mu.Unlock()
	return nil
}

func pruneWindow(window []time.Time, now time.Time) []time.Time {
	kept := window[:0]
	for _, t := range window {
		if now.Sub(t) < windowSize {
			kept = append(kept, t)
		}
	}
	return kept
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
