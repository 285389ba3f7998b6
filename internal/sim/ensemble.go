package sim

import (
	"context"
	"sync"
)

// Ensemble steps several independent drivers concurrently, for example the
// same scene under different strategies. Drivers must not share a World.
type Ensemble struct {
	drivers []*Driver
}

func NewEnsemble(drivers ...*Driver) *Ensemble {
	return &Ensemble{drivers: drivers}
}

func (e *Ensemble) Len() int { return len(e.drivers) }

// Run runs every driver for the given number of steps and returns the results
// in driver order. The first error, by driver order, is returned alongside
// the partial results.
func (e *Ensemble) Run(ctx context.Context, steps int) ([]*Result, error) {
	results := make([]*Result, len(e.drivers))
	errs := make([]error, len(e.drivers))

	var wg sync.WaitGroup
	for i, d := range e.drivers {
		wg.Add(1)
		go func(idx int, d *Driver) {
			defer wg.Done()
			results[idx], errs[idx] = d.Run(ctx, steps)
		}(i, d)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}

	return results, nil
}
