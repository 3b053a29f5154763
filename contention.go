package sharedlock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// MeasureConfig controls a contention measurement.
type MeasureConfig struct {
	Duration   time.Duration // how long to run at each concurrency level
	Warmup     time.Duration // unmeasured run before each level
	Levels     []int         // concurrency levels (default: [1,2,4,8])
	WriteEvery int           // every WriteEvery-th operation of a worker writes; 0 means read-only
	Hold       time.Duration // how long each token is held before release
}

// DefaultMeasureConfig returns a read-mostly workload: one write in ten.
func DefaultMeasureConfig() MeasureConfig {
	return MeasureConfig{
		Duration:   1 * time.Second,
		Warmup:     100 * time.Millisecond,
		Levels:     []int{1, 2, 4, 8},
		WriteEvery: 10,
		Hold:       0,
	}
}

// Result holds the measurements for one concurrency level.
type Result struct {
	N          int
	Duration   time.Duration
	Reads      int64
	Writes     int64
	Throughput float64         // acquisitions per second
	ReadWaits  []time.Duration // time spent blocked in AcquireRead
	WriteWaits []time.Duration // time spent blocked in AcquireWrite
}

// Statistics summarises a set of wait times.
type Statistics struct {
	Mean   time.Duration
	Stddev time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

// Measure drives a mixed read/write load against h at each level in
// cfg.Levels and reports how long acquisitions waited. It acquires tokens
// directly and never touches a payload.
func Measure(ctx context.Context, h *Handle, cfg MeasureConfig) ([]Result, error) {
	if h == nil {
		return nil, errors.New("sharedlock: measure: nil handle")
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("sharedlock: measure: duration must be positive, got %v", cfg.Duration)
	}

	results := make([]Result, 0, len(cfg.Levels))
	for _, n := range cfg.Levels {
		if n <= 0 {
			return nil, fmt.Errorf("sharedlock: measure: invalid level %d", n)
		}

		if cfg.Warmup > 0 {
			if _, err := measureLevel(ctx, h, n, cfg.Warmup, cfg); err != nil {
				return nil, fmt.Errorf("warmup at N=%d: %w", n, err)
			}
		}

		r, err := measureLevel(ctx, h, n, cfg.Duration, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed at N=%d: %w", n, err)
		}
		results = append(results, r)
	}

	return results, nil
}

func measureLevel(ctx context.Context, h *Handle, n int, d time.Duration, cfg MeasureConfig) (Result, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var (
		reads, writes int64
		readWaits     = make([][]time.Duration, n)
		writeWaits    = make([][]time.Duration, n)
	)

	g, gctx := errgroup.WithContext(phaseCtx)
	start := time.Now()

	for i := 0; i < n; i++ {
		worker := i
		g.Go(func() error {
			for op := 1; gctx.Err() == nil; op++ {
				write := cfg.WriteEvery > 0 && op%cfg.WriteEvery == 0

				began := time.Now()
				var t *Token
				if write {
					t = h.AcquireWrite()
				} else {
					t = h.AcquireRead()
				}
				waited := time.Since(began)

				if cfg.Hold > 0 {
					time.Sleep(cfg.Hold)
				}
				t.Release()

				if write {
					atomic.AddInt64(&writes, 1)
					writeWaits[worker] = append(writeWaits[worker], waited)
				} else {
					atomic.AddInt64(&reads, 1)
					readWaits[worker] = append(readWaits[worker], waited)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	elapsed := time.Since(start)

	// The phase timeout is the normal way out; only the caller's context
	// ending early is an error.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Result{
		N:          n,
		Duration:   elapsed,
		Reads:      reads,
		Writes:     writes,
		Throughput: float64(reads+writes) / elapsed.Seconds(),
		ReadWaits:  flatten(readWaits),
		WriteWaits: flatten(writeWaits),
	}, nil
}

func flatten(perWorker [][]time.Duration) []time.Duration {
	var total int
	for _, w := range perWorker {
		total += len(w)
	}
	all := make([]time.Duration, 0, total)
	for _, w := range perWorker {
		all = append(all, w...)
	}
	return all
}

// Summarize computes mean, deviation and percentiles of waits.
func Summarize(waits []time.Duration) Statistics {
	if len(waits) == 0 {
		return Statistics{}
	}

	sorted := make([]time.Duration, len(waits))
	copy(sorted, waits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, w := range sorted {
		sum += w
	}
	mean := sum / time.Duration(len(sorted))

	var variance float64
	for _, w := range sorted {
		diff := float64(w - mean)
		variance += diff * diff
	}

	return Statistics{
		Mean:   mean,
		Stddev: time.Duration(math.Sqrt(variance / float64(len(sorted)))),
		P50:    sorted[len(sorted)*50/100],
		P95:    sorted[len(sorted)*95/100],
		P99:    sorted[len(sorted)*99/100],
		Max:    sorted[len(sorted)-1],
	}
}
