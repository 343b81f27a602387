// Package watch implements a single-slot broadcast cell. Publishing replaces
// the stored value and wakes every receiver; receivers only ever observe the
// most recent value, never a queue of everything published.
package watch

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Changed once the cell is closed and the receiver
// has seen the last published value.
var ErrClosed = errors.New("watch cell closed")

// Cell holds the latest value of type T.
type Cell[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
	closed  bool
}

// New returns a cell holding initial.
func New[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value:   initial,
		changed: make(chan struct{}),
	}
}

// Modify calls fn with the current value under the cell lock. When fn
// returns true its result replaces the value and receivers are woken.
func (c *Cell[T]) Modify(fn func(current T) (T, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	next, ok := fn(c.value)
	if !ok {
		return false
	}
	c.value = next
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
	return true
}

// Close wakes every receiver; no further values are accepted.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.changed)
}

// Subscribe returns a receiver that treats the current value as seen.
func (c *Cell[T]) Subscribe() *Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Receiver[T]{cell: c, seen: c.version}
}

// Receiver observes a Cell. A Receiver is not safe for concurrent use.
type Receiver[T any] struct {
	cell *Cell[T]
	seen uint64
}

// Changed blocks until a value newer than the last one seen is available,
// marks it seen and returns it.
func (r *Receiver[T]) Changed(ctx context.Context) (T, error) {
	c := r.cell
	for {
		c.mu.Lock()
		if c.version > r.seen {
			r.seen = c.version
			v := c.value
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			c.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		wake := c.changed
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}
