package engine

import (
	"context"
	"errors"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/watch"
)

// snapshot is the value held by the deferred results cell.
type snapshot struct {
	seq     uint64
	results []apps.Application
	final   bool
}

// DeferredSearch issues a new token, starts ranking query in the background
// and returns immediately. Issuing a token supersedes every earlier one.
func (e *Engine) DeferredSearch(query apptext.String) (uint64, *Subscription) {
	e.tokenMu.Lock()
	seq := e.seq.Add(1)
	token := seq - e.base
	e.tokenMu.Unlock()
	sub := &Subscription{engine: e, seq: seq, token: token, recv: e.results.Subscribe()}

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return token, sub
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.runDeferred(seq, query)
	}()
	return token, sub
}

func (e *Engine) runDeferred(seq uint64, query apptext.String) {
	if e.superseded(seq) {
		e.logger.Debug("deferred search dropped before ranking", "seq", seq)
		return
	}
	results := e.BlockingSearch(query)

	step := e.opts.incremental
	if step > 0 {
		for end := step; end < len(results); end += step {
			if !e.publish(snapshot{seq: seq, results: results[:end:end]}) {
				return
			}
		}
	}
	e.publish(snapshot{seq: seq, results: results, final: true})
}

// publish stores s unless a newer search was issued since s.seq.
func (e *Engine) publish(s snapshot) bool {
	return e.results.Modify(func(cur snapshot) (snapshot, bool) {
		if e.seq.Load() != s.seq {
			return cur, false
		}
		return s, true
	})
}

func (e *Engine) superseded(seq uint64) bool {
	return e.seq.Load() > seq
}

// Subscription relays the results of one deferred search. It is not safe
// for concurrent use.
type Subscription struct {
	engine *Engine
	seq    uint64
	token  uint64
	recv   *watch.Receiver[snapshot]
	done   bool
}

// Token returns the token the subscription delivers for.
func (s *Subscription) Token() uint64 { return s.token }

// Next blocks until results for this subscription's token are published and
// returns them. Snapshots of older tokens are skipped. It returns
// ErrSuperseded once a newer search was issued, ErrDone after the final
// snapshot, and ErrClosed when the engine shuts down.
func (s *Subscription) Next(ctx context.Context) ([]apps.Application, error) {
	if s.done {
		return nil, ErrDone
	}
	for {
		if s.engine.superseded(s.seq) {
			s.done = true
			return nil, ErrSuperseded
		}

		snap, err := s.recv.Changed(ctx)
		if errors.Is(err, watch.ErrClosed) {
			s.done = true
			return nil, ErrClosed
		}
		if err != nil {
			return nil, err
		}

		switch {
		case snap.seq < s.seq:
			continue
		case snap.seq > s.seq, s.engine.superseded(s.seq):
			s.done = true
			return nil, ErrSuperseded
		}
		if snap.final {
			s.done = true
		}
		return snap.results, nil
	}
}

// Done reports whether Next has nothing more to deliver. Right after Next
// returns results it means those results were final.
func (s *Subscription) Done() bool { return s.done }

// Wait drains the subscription and returns the final results.
func (s *Subscription) Wait(ctx context.Context) ([]apps.Application, error) {
	var last []apps.Application
	for {
		res, err := s.Next(ctx)
		if errors.Is(err, ErrDone) {
			return last, nil
		}
		if err != nil {
			return nil, err
		}
		last = res
	}
}
