// Package learned remembers which application the user opened after typing
// a query, so the same query can promote it next time.
package learned

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/store"
)

// StoreKey is the store key the whole index is persisted under.
const StoreKey = "learned_substring_index"

// Entry is one learned mapping.
type Entry struct {
	Query apptext.String   `json:"query"`
	App   apps.Application `json:"app"`
}

// Index maps exact queries, compared case-insensitively, to the application
// last opened after them.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry

	// persistMu orders snapshots so a later Record is never overwritten by
	// an earlier one on disk.
	persistMu sync.Mutex
	st        store.Store
	logger    *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// New returns an empty index persisting to st. A nil st keeps the index in
// memory only.
func New(st store.Store, opts ...Option) *Index {
	i := &Index{
		entries: make(map[string]Entry),
		st:      st,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Load restores the index persisted in st. A missing or unreadable value
// leaves the index empty.
func Load(st store.Store, opts ...Option) *Index {
	i := New(st, opts...)
	if st == nil {
		return i
	}

	var saved []Entry
	if err := st.Get(StoreKey, &saved); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			i.logger.Debug("no learned index stored yet")
		} else {
			i.logger.Warn("failed to load learned index, starting empty", "error", err)
		}
		return i
	}
	for _, e := range saved {
		if e.Query.IsEmpty() {
			continue
		}
		i.entries[e.Query.Key()] = e
	}
	i.logger.Debug("learned index loaded", "entries", len(i.entries))
	return i
}

// Record maps every query of history to app and persists the index. The
// in-memory update always takes effect; the returned error only reports a
// failed save.
func (i *Index) Record(history []apptext.String, app apps.Application) error {
	i.persistMu.Lock()
	defer i.persistMu.Unlock()

	i.mu.Lock()
	for _, q := range history {
		if q.IsEmpty() {
			continue
		}
		i.entries[q.Key()] = Entry{Query: q, App: app}
	}
	snapshot := i.snapshotLocked()
	i.mu.Unlock()

	if i.st == nil {
		return nil
	}
	if err := i.st.Put(StoreKey, snapshot); err != nil {
		i.logger.Error("failed to persist learned index", "error", err)
		return fmt.Errorf("failed to persist learned index: %w", err)
	}
	return nil
}

// Lookup returns the application learned for query.
func (i *Index) Lookup(query apptext.String) (apps.Application, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[query.Key()]
	return e.App, ok
}

// Len returns the number of learned queries.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(i.entries))
	for _, e := range i.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Query.Key(), b.Query.Key())
	})
	return out
}
