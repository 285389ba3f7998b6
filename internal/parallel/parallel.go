// Package parallel is the data-parallel execution substrate for the step
// stages: "for each element, run this independent update".
//
// A Runner splits [0, n) into contiguous chunks and calls fn once per chunk.
// Callers must guarantee that chunks write disjoint data; every call site in
// this module documents its read-set and write-set next to the call.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultMinChunk is the smallest range worth handing to another goroutine.
const DefaultMinChunk = 64

type Runner interface {
	// For calls fn over disjoint sub-ranges covering [0, n) and returns after
	// every call has finished.
	For(n int, fn func(lo, hi int))
	Workers() int
}

// Serial runs everything inline on the calling goroutine.
type Serial struct{}

func (Serial) For(n int, fn func(lo, hi int)) {
	if n > 0 {
		fn(0, n)
	}
}

func (Serial) Workers() int { return 1 }

// Pool fans chunks out over at most workers goroutines.
type Pool struct {
	workers  int
	minChunk int
}

// NewPool returns a pool with the given worker count; workers <= 0 means
// runtime.NumCPU(). minChunk <= 0 means DefaultMinChunk.
func NewPool(workers, minChunk int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if minChunk <= 0 {
		minChunk = DefaultMinChunk
	}
	return &Pool{workers: workers, minChunk: minChunk}
}

func (p *Pool) Workers() int { return p.workers }

func (p *Pool) For(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := p.workers
	if n/p.minChunk < workers {
		workers = n / p.minChunk
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		lo, hi := start, end
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// New returns Serial for workers == 1 and a Pool otherwise.
func New(workers int) Runner {
	if workers == 1 {
		return Serial{}
	}
	return NewPool(workers, DefaultMinChunk)
}
