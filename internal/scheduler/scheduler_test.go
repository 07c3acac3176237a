package scheduler

import (
	"context"
	"testing"
	"time"
)

// TestRunSkipsOverlappingTicks covers the non-overlapping-tick guard: a
// slow pass must never run concurrently with the next tick's pass, and a
// busy tick is skipped rather than queued.
func TestRunSkipsOverlappingTicks(t *testing.T) {
	t.Parallel()
	fs := &concurrencyTrackingStore{sleep: 80 * time.Millisecond}
	s := New(fs, 20*time.Millisecond, 0, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if fs.maxConcurrent > 1 {
		t.Errorf("maxConcurrent = %d, want at most 1: ticks overlapped", fs.maxConcurrent)
	}
	if fs.calls < 2 {
		t.Errorf("calls = %d, want at least 2 passes in 350ms", fs.calls)
	}
}
