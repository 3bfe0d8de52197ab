package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttled spaces out calls to a completer so that summarization loops
// and concurrent question answering share one request budget. A single
// Throttled is created per process and handed to every caller.
type Throttled struct {
	next    Completer
	limiter *rate.Limiter
}

// NewThrottled allows one call per interval with no bursting. An interval
// of zero or less disables throttling.
func NewThrottled(next Completer, interval time.Duration) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, 1)}
}

// Complete waits for a slot and forwards the call.
func (t *Throttled) Complete(ctx context.Context, prompt string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	return t.next.Complete(ctx, prompt)
}

// Stream waits for a slot and forwards the call. Completers that cannot
// stream deliver their whole answer as a single delta.
func (t *Throttled) Stream(ctx context.Context, prompt string, onDelta func(string) error) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	if s, ok := t.next.(Streamer); ok {
		return s.Stream(ctx, prompt, onDelta)
	}
	text, err := t.next.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	return onDelta(text)
}

var _ StreamingCompleter = (*Throttled)(nil)
