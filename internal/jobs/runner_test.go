package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	r := NewRunner(3, nil)
	r.Backoff = time.Millisecond

	var attempts atomic.Int32
	ok := r.Enqueue("owner-1", "flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.True(t, ok)
	r.Shutdown()
	require.Equal(t, int32(3), attempts.Load())
}

func TestRunnerExhaustsRetries(t *testing.T) {
	t.Parallel()
	r := NewRunner(2, nil)
	r.Backoff = time.Millisecond

	var attempts atomic.Int32
	r.Enqueue("owner-1", "broken", func(ctx context.Context) error {
		attempts.Add(1)
		return fmt.Errorf("permanent")
	})
	r.Shutdown()
	require.Equal(t, int32(2), attempts.Load())
}

func TestRunnerSerializesPerOwner(t *testing.T) {
	t.Parallel()
	r := NewRunner(1, nil)

	var mu sync.Mutex
	var order []int
	var inFlight atomic.Int32
	for i := 0; i < 5; i++ {
		i := i
		r.Enqueue("owner-1", "job", func(ctx context.Context) error {
			require.Equal(t, int32(1), inFlight.Add(1), "jobs for one owner must not overlap")
			defer inFlight.Add(-1)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	r.Shutdown()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRunnerRejectsAfterShutdown(t *testing.T) {
	t.Parallel()
	r := NewRunner(1, nil)
	r.Shutdown()
	require.False(t, r.Enqueue("owner-1", "late", func(ctx context.Context) error { return nil }))
}
