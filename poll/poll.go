// Package poll observes the eventual completion of server-side jobs by
// re-running an idempotent probe on a fixed interval.
//
// Until stops at the first probe whose predicate holds; Every runs until
// its context is cancelled. Both run the first probe immediately.
//
// By default a tick that fires while the previous probe is still in flight
// is dropped rather than queued, so a slow backend never sees a pile-up of
// identical requests.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Overlap decides what happens to a tick that arrives mid-probe.
type Overlap int

const (
	// OverlapSkip drops ticks while a probe is running.
	OverlapSkip Overlap = iota
	// OverlapAllow starts a new probe on every tick.
	OverlapAllow
)

// ErrTooManyErrors is returned when MaxConsecutiveErrors is reached.
var ErrTooManyErrors = errors.New("poll: too many consecutive errors")

// Config controls a polling loop.
type Config struct {
	// Interval between probes. Required.
	Interval time.Duration

	// Overlap defaults to OverlapSkip.
	Overlap Overlap

	// MaxConsecutiveErrors aborts after this many failed probes in a row.
	// 0 means errors are logged and polling continues.
	MaxConsecutiveErrors int

	// Logger receives probe failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %v", c.Interval)
	}
	if c.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("max_consecutive_errors must be >= 0, got %d", c.MaxConsecutiveErrors)
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Stats reports what a loop did. Useful for tests and diagnostics.
type Stats struct {
	Probes  int64
	Skipped int64
	Errors  int64
}

// Probe checks the job once. done reports whether the stop condition holds.
type Probe[T any] func(ctx context.Context) (value T, done bool, err error)

type result[T any] struct {
	value T
	done  bool
	err   error
}

// Until runs probe until it reports done, ctx is cancelled or the error
// budget is exhausted.
func Until[T any](ctx context.Context, cfg Config, probe Probe[T]) (T, Stats, error) {
	var zero T
	var stats Stats
	if err := cfg.Validate(); err != nil {
		return zero, stats, err
	}

	// Cancel runs before Wait so blocked probes can exit.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result[T], 1)
	var inFlight atomic.Int32

	launch := func() {
		inFlight.Add(1)
		stats.Probes++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer inFlight.Add(-1)
			v, done, err := probe(ctx)
			select {
			case results <- result[T]{value: v, done: done, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log := cfg.logger()
	consecutive := 0
	launch()

	for {
		select {
		case <-ctx.Done():
			return zero, stats, ctx.Err()

		case <-ticker.C:
			if cfg.Overlap == OverlapSkip && inFlight.Load() > 0 {
				stats.Skipped++
				continue
			}
			launch()

		case r := <-results:
			if r.err != nil {
				stats.Errors++
				consecutive++
				log.Warn("poll probe failed",
					slog.Any("error", r.err),
					slog.Int("consecutive", consecutive))
				if cfg.MaxConsecutiveErrors > 0 && consecutive >= cfg.MaxConsecutiveErrors {
					return zero, stats, fmt.Errorf("%w: %w", ErrTooManyErrors, r.err)
				}
				continue
			}
			consecutive = 0
			if r.done {
				return r.value, stats, nil
			}
		}
	}
}

// Every runs fn on each tick until ctx is cancelled. Probe errors are
// handled as in Until. Returns ctx.Err() on cancellation.
func Every(ctx context.Context, cfg Config, fn func(ctx context.Context) error) (Stats, error) {
	_, stats, err := Until(ctx, cfg, func(ctx context.Context) (struct{}, bool, error) {
		return struct{}{}, false, fn(ctx)
	})
	return stats, err
}
