// Package scroll drives lazily-loaded, virtualized scroll regions to their
// content boundary.
//
// Neither Converge nor Paginate has an iteration or time ceiling. They trust
// the stability signal of the region; an offset that oscillates forever or a
// load-more affordance that never disappears keeps the loop running until the
// region reports an error (an operator cancelling the context is the only
// intended escape hatch).
package scroll

import (
	"context"
	"math"
	"time"
)

// Region is a scrollable element whose content arrives asynchronously.
type Region interface {
	ScrollOffset(ctx context.Context) (float64, error)
	ScrollBy(ctx context.Context, delta float64) error
}

// SleepFunc suspends the caller for d. Tests inject a no-op.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sample is reported to an Observer after every offset probe.
type Sample struct {
	N      int // 1-based sample number
	Offset float64
	Stable int
}

type Observer func(Sample)

const (
	DefaultStep      = 500.0
	DefaultSettle    = 500 * time.Millisecond
	DefaultThreshold = 3
)

// Params configures one convergence run. Step is scrolled backwards (towards
// older content).
type Params struct {
	Step      float64
	Settle    time.Duration
	Threshold int
	Sleep     SleepFunc
	Observe   Observer
}

func (p Params) withDefaults() Params {
	if p.Step == 0 {
		p.Step = DefaultStep
	}
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

// Converge scrolls region backwards until its offset has been observed
// unchanged Threshold times in a row and returns that offset.
//
// Every probe is followed by a scroll step and a settle delay, including the
// probe that completes the stable run.
func Converge(ctx context.Context, region Region, p Params) (float64, error) {
	p = p.withDefaults()

	last := math.Inf(-1)
	stable := 0
	for n := 1; ; n++ {
		offset, err := region.ScrollOffset(ctx)
		if err != nil {
			return last, err
		}
		if offset == last {
			stable++
		} else {
			stable = 0
		}
		last = offset
		if p.Observe != nil {
			p.Observe(Sample{N: n, Offset: offset, Stable: stable})
		}

		if err := region.ScrollBy(ctx, -p.Step); err != nil {
			return last, err
		}
		if err := p.Sleep(ctx, p.Settle); err != nil {
			return last, err
		}
		if stable >= p.Threshold {
			return last, nil
		}
	}
}
