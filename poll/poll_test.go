package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_StopsWhenDone(t *testing.T) {
	var calls atomic.Int32
	got, stats, err := Until(context.Background(), Config{Interval: 5 * time.Millisecond},
		func(ctx context.Context) (int, bool, error) {
			n := int(calls.Add(1))
			return n, n == 3, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, int64(3), stats.Probes)
}

func TestUntil_FirstProbeImmediate(t *testing.T) {
	start := time.Now()
	_, _, err := Until(context.Background(), Config{Interval: time.Hour},
		func(ctx context.Context) (string, bool, error) {
			return "ready", true, nil
		})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_SkipsOverlappingTicks(t *testing.T) {
	var running, maxRunning atomic.Int32
	var calls atomic.Int32

	_, stats, err := Until(context.Background(), Config{Interval: 2 * time.Millisecond},
		func(ctx context.Context) (int, bool, error) {
			cur := running.Add(1)
			defer running.Add(-1)
			if cur > maxRunning.Load() {
				maxRunning.Store(cur)
			}
			n := calls.Add(1)
			time.Sleep(20 * time.Millisecond)
			return 0, n == 2, nil
		})

	require.NoError(t, err)
	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, int64(2), stats.Probes)
	assert.Positive(t, stats.Skipped)
}

func TestUntil_AllowOverlap(t *testing.T) {
	var running, maxRunning atomic.Int32
	release := make(chan struct{})
	var once sync.Once

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := Until(ctx, Config{Interval: 2 * time.Millisecond, Overlap: OverlapAllow},
		func(ctx context.Context) (int, bool, error) {
			cur := running.Add(1)
			defer running.Add(-1)
			for {
				old := maxRunning.Load()
				if cur <= old || maxRunning.CompareAndSwap(old, cur) {
					break
				}
			}
			if cur >= 3 {
				once.Do(func() { close(release) })
				return 0, true, nil
			}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return 0, false, nil
		})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, maxRunning.Load(), int32(3))
}

func TestUntil_ToleratesErrors(t *testing.T) {
	var calls atomic.Int32
	got, stats, err := Until(context.Background(), Config{Interval: time.Millisecond},
		func(ctx context.Context) (string, bool, error) {
			if calls.Add(1) < 3 {
				return "", false, errors.New("backend busy")
			}
			return "done", true, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, int64(2), stats.Errors)
}

func TestUntil_MaxConsecutiveErrors(t *testing.T) {
	boom := errors.New("boom")
	_, stats, err := Until(context.Background(), Config{Interval: time.Millisecond, MaxConsecutiveErrors: 2},
		func(ctx context.Context) (int, bool, error) {
			return 0, false, boom
		})

	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), stats.Errors)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := Until(ctx, Config{Interval: time.Millisecond},
		func(ctx context.Context) (int, bool, error) {
			return 0, false, nil
		})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUntil_InvalidConfig(t *testing.T) {
	_, _, err := Until(context.Background(), Config{}, func(ctx context.Context) (int, bool, error) {
		t.Fatal("probe must not run")
		return 0, false, nil
	})
	assert.Error(t, err)
}

func TestEvery_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	stats, err := Every(ctx, Config{Interval: time.Millisecond}, func(ctx context.Context) error {
		if calls.Add(1) == 5 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, stats.Probes, int64(5))
}
