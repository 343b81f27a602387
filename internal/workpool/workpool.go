// Package workpool fans CPU-bound loops out over a bounded ants pool.
package workpool

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// minChunk keeps tiny loops on the calling goroutine.
const minChunk = 64

// Pool runs chunks of index ranges on a fixed set of workers. A nil *Pool
// runs everything on the caller.
type Pool struct {
	pool *ants.Pool
}

// New creates a pool with size workers. Sizes below one default to
// runtime.NumCPU().
func New(size int) (*Pool, error) {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

// Run calls fn over [0, n) split into contiguous [lo, hi) chunks and returns
// once every chunk has finished. Chunks that find the pool saturated run on
// the caller, so nested use cannot deadlock.
func (p *Pool) Run(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if p == nil || n <= minChunk {
		fn(0, n)
		return
	}

	chunk := max(minChunk, (n+p.pool.Cap()*4-1)/(p.pool.Cap()*4))
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(lo, hi)
		}
		if err := p.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return p.pool.Cap()
}

// Release stops the workers. The pool must not be used afterwards.
func (p *Pool) Release() {
	if p != nil {
		p.pool.Release()
	}
}
