package speech

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Failover prefers the primary synthesizer and switches to the fallback when
// the primary fails. Once the fallback succeeds it stays active until it
// fails; then the primary is retried.
type Failover struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func NewFailover(primary, fallback Synthesizer) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

// FallbackActive reports whether the next call goes to the fallback first.
func (f *Failover) FallbackActive() bool { return f.fallbackActive.Load() }

func (f *Failover) Synthesize(ctx context.Context, text string) ([]byte, error) {
	first, second := f.primary, f.fallback
	if f.fallbackActive.Load() {
		first, second = f.fallback, f.primary
	}

	wav, firstErr := first.Synthesize(ctx, text)
	if firstErr == nil {
		return wav, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wav, secondErr := second.Synthesize(ctx, text)
	if secondErr != nil {
		return nil, fmt.Errorf("tts failover: first backend: %v; second backend: %w", firstErr, secondErr)
	}
	f.fallbackActive.Store(second == f.fallback)
	return wav, nil
}
