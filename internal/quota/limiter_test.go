package quota

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, rpm int) (*Limiter, *[]time.Duration) {
	t.Helper()
	s := newTestStore(t)
	if err := s.EnsureModels("groq", []string{"test-model"}, ModelQuota{RequestsPerMinute: rpm}); err != nil {
		t.Fatal(err)
	}

	l := NewLimiter(s, testLogger())
	var slept []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return l, &slept
}

func TestWait_AdmitsUpToLimit(t *testing.T) {
	l, slept := newTestLimiter(t, 3)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), "groq", "test-model"); err != nil {
			t.Fatalf("Wait() #%d error = %v", i+1, err)
		}
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v before reaching the limit", *slept)
	}
}

func TestWait_BlocksUntilOldestExitsWindow(t *testing.T) {
	l, slept := newTestLimiter(t, 2)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	l.Wait(context.Background(), "groq", "test-model")
	now = base.Add(10 * time.Second)
	l.Wait(context.Background(), "groq", "test-model")

	// Third call at t=20s: oldest timestamp (t=0) leaves the window at t=60s,
	// so the wait is 40s plus the 1s safety margin.
	now = base.Add(20 * time.Second)
	if err := l.Wait(context.Background(), "groq", "test-model"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if len(*slept) != 1 {
		t.Fatalf("sleeps = %d, want 1", len(*slept))
	}
	want := 41 * time.Second
	if (*slept)[0] != want {
		t.Errorf("slept %v, want %v", (*slept)[0], want)
	}
}

func TestWait_ExpiredTimestampsFreeTheWindow(t *testing.T) {
	l, slept := newTestLimiter(t, 1)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	l.Wait(context.Background(), "groq", "test-model")

	now = base.Add(90 * time.Second)
	if err := l.Wait(context.Background(), "groq", "test-model"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v after the window expired", *slept)
	}
}

func TestWait_UnlimitedModelsAreExempt(t *testing.T) {
	l, slept := newTestLimiter(t, 0)

	for i := 0; i < 50; i++ {
		if err := l.Wait(context.Background(), "groq", "test-model"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if len(*slept) != 0 {
		t.Errorf("unlimited model slept %v", *slept)
	}

	// Unknown models are exempt too.
	if err := l.Wait(context.Background(), "groq", "unknown"); err != nil {
		t.Fatalf("Wait() unknown model error = %v", err)
	}
}

func TestWait_CancelledContext(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	l.sleep = sleepContext
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Wait(context.Background(), "groq", "test-model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, "groq", "test-model"); err == nil {
		t.Error("Wait() with cancelled context returned nil error")
	}
}
