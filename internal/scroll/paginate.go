package scroll

import (
	"context"
	"fmt"
	"time"
)

// Affordance is a "load older content" control.
type Affordance interface {
	Present(ctx context.Context) (bool, error)
	Activate(ctx context.Context) error
}

type state int

const (
	checking state = iota
	activating
	converging
	done
)

const DefaultGrace = 3 * time.Second

// Paginate activates aff while it is present, waiting grace after every
// activation and re-running converge. It returns the number of activations.
func Paginate(ctx context.Context, aff Affordance, grace time.Duration, converge func(context.Context) error, sleep SleepFunc) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	rounds := 0
	st := checking
	for st != done {
		switch st {
		case checking:
			ok, err := aff.Present(ctx)
			if err != nil {
				return rounds, fmt.Errorf("probe load-more: %w", err)
			}
			if !ok {
				st = done
				continue
			}
			st = activating
		case activating:
			if err := aff.Activate(ctx); err != nil {
				return rounds, fmt.Errorf("activate load-more: %w", err)
			}
			rounds++
			if err := sleep(ctx, grace); err != nil {
				return rounds, err
			}
			st = converging
		case converging:
			if err := converge(ctx); err != nil {
				return rounds, err
			}
			st = checking
		}
	}
	return rounds, nil
}

// Settle runs an initial convergence on region and then paginates through
// aff until no more older content can be requested.
func Settle(ctx context.Context, region Region, aff Affordance, p Params, grace time.Duration) (int, error) {
	p = p.withDefaults()
	run := func(ctx context.Context) error {
		_, err := Converge(ctx, region, p)
		return err
	}
	if err := run(ctx); err != nil {
		return 0, err
	}
	return Paginate(ctx, aff, grace, run, p.Sleep)
}
