// Package engine ranks installed applications against substring queries and
// coordinates overlapping asynchronous searches.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/learned"
	"github.com/0xADE/ade-fetchd/internal/store"
	"github.com/0xADE/ade-fetchd/internal/substr"
	"github.com/0xADE/ade-fetchd/internal/watch"
	"github.com/0xADE/ade-fetchd/internal/workpool"
)

// SearchEngine is the capability set a launcher front end talks to.
type SearchEngine interface {
	BlockingSearch(query apptext.String) []apps.Application
	DeferredSearch(query apptext.String) (uint64, *Subscription)
	Record(history []apptext.String, app apps.Application) error
	Refresh(ctx context.Context) (bool, error)
}

var _ SearchEngine = (*Engine)(nil)

// state is one catalog version and the index built from it. It is swapped
// as a unit.
type state struct {
	catalog apps.Catalog
	index   *substr.Index
}

// Engine is the substring ranking engine.
type Engine struct {
	source  apps.Source
	learned *learned.Index
	pool    *workpool.Pool
	logger  *slog.Logger
	opts    options

	current   atomic.Pointer[state]
	refreshMu sync.Mutex

	// seq orders deferred searches and never goes back. Reported tokens
	// are seq minus base, where base moves forward on a token reset.
	seq     atomic.Uint64
	tokenMu sync.Mutex
	base    uint64
	results *watch.Cell[snapshot]

	closeMu  sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// New loads the learned index from st, enumerates source once and builds the
// first index.
func New(ctx context.Context, source apps.Source, st store.Store, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if st == nil {
		return nil, ErrStoreRequired
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pool, err := workpool.New(o.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	e := &Engine{
		source:  source,
		learned: learned.Load(st, learned.WithLogger(o.logger)),
		pool:    pool,
		logger:  o.logger,
		opts:    o,
		results: watch.New(snapshot{}),
	}
	e.current.Store(&state{index: substr.New()})

	if _, err := e.Refresh(ctx); err != nil {
		pool.Release()
		return nil, err
	}
	e.logger.Debug("engine ready", "workers", pool.Size(), "learned", e.learned.Len())
	return e, nil
}

// Refresh re-enumerates the catalog and rebuilds the index when anything
// changed. It reports whether a new index was swapped in. On error the
// previous catalog stays in use.
func (e *Engine) Refresh(ctx context.Context) (bool, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	if e.opts.resetTokens {
		e.tokenMu.Lock()
		e.base = e.seq.Load()
		e.tokenMu.Unlock()
	}

	catalog, err := e.source.Enumerate(ctx)
	if err != nil {
		e.logger.Error("catalog enumeration failed, keeping previous catalog", "error", err)
		return false, fmt.Errorf("failed to enumerate applications: %w", err)
	}

	cur := e.current.Load()
	if cur.catalog.Equal(catalog) {
		e.logger.Debug("catalog unchanged", "apps", catalog.Len())
		return false, nil
	}

	index := substr.Build(catalog, e.pool)
	e.current.Store(&state{catalog: catalog, index: index})
	e.logger.Info("catalog indexed", "apps", catalog.Len(), "keys", index.Len())
	return true, nil
}

// Catalog returns the catalog currently searched.
func (e *Engine) Catalog() apps.Catalog {
	return e.current.Load().catalog
}

// BlockingSearch ranks the catalog against query and returns the full list.
func (e *Engine) BlockingSearch(query apptext.String) []apps.Application {
	return e.rank(e.current.Load(), query)
}

// Record teaches the engine that app was opened after typing history. The
// mapping is kept even when saving it fails.
func (e *Engine) Record(history []apptext.String, app apps.Application) error {
	return e.learned.Record(history, app)
}

// Learned returns the application learned for query.
func (e *Engine) Learned(query apptext.String) (apps.Application, bool) {
	return e.learned.Lookup(query)
}

// Close ends every subscription with ErrClosed, waits for running deferred
// searches and stops the worker pool.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	e.closeMu.Unlock()

	e.results.Close()
	e.inflight.Wait()
	e.pool.Release()
	return nil
}
