package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Backoff bounds a Retry loop. Zero fields take defaults.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 5 * time.Second
	}
	return b
}

// delay doubles per attempt with +/-10% jitter, capped at Max.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Max
	if attempt <= 32 {
		if s := b.Initial << (attempt - 1); s > 0 && s < b.Max {
			d = s
		}
	}
	jitter := time.Duration(float64(d) * 0.1 * (2*rand.Float64() - 1))
	return d + jitter
}

// Retry calls fn until it succeeds, the attempts run out or ctx ends.
// ErrCircuitOpen is returned immediately.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	var err error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) || attempt == b.Attempts {
			break
		}
		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	return err
}
