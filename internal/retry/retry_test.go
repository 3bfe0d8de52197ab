package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func TestPolicySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPolicySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestPolicyReturnsLastError(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		return errors.New("attempt failed")
	}, nil)
	if err == nil || err.Error() != "attempt failed" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != fast.MaxAttempts {
		t.Errorf("expected %d calls, got %d", fast.MaxAttempts, calls)
	}
}

func TestPolicyStopsWhenContextEndsDuringBackoff(t *testing.T) {
	slow := Policy{MaxAttempts: 5, BaseDelay: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- slow.Do(ctx, func() error {
			calls++
			return errors.New("fail")
		}, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestPolicyContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := fast.Do(ctx, func() error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p != DefaultPolicy {
		t.Errorf("withDefaults() = %+v, want %+v", p, DefaultPolicy)
	}

	p = Policy{BaseDelay: time.Second, MaxDelay: time.Millisecond}.withDefaults()
	if p.MaxDelay != time.Second {
		t.Errorf("MaxDelay below BaseDelay should be raised, got %v", p.MaxDelay)
	}
}

func TestBackoffDoublesWithJitter(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := DefaultPolicy.backoff(attempt)
		if d < base || d > base+base/4 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v]", attempt, d, base, base+base/4)
		}
	}
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	for _, attempt := range []int{2, 5, 20} {
		if d := p.backoff(attempt); d < 3*time.Second || d > 3*time.Second+3*time.Second/4 {
			t.Errorf("attempt %d: backoff %v not capped at 3s", attempt, d)
		}
	}
}

func TestOnRetryReportsEachRetry(t *testing.T) {
	var attempts []int
	var waits []time.Duration
	fast.Do(context.Background(), func() error {
		return errors.New("fail")
	}, func(attempt int, err error, wait time.Duration) {
		attempts = append(attempts, attempt)
		waits = append(waits, wait)
	})

	// No callback after the final attempt.
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("onRetry attempts = %v, want [1 2]", attempts)
	}
	for _, w := range waits {
		if w <= 0 || w > fast.MaxDelay+fast.MaxDelay/4 {
			t.Errorf("wait %v outside policy bounds", w)
		}
	}
}

func TestPermanentStopsRetrying(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := fast.Do(context.Background(), func() error {
		calls++
		return Permanent(sentinel)
	}, nil)
	if err != sentinel {
		t.Errorf("expected unwrapped sentinel, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
