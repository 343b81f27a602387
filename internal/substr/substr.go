// Package substr implements the inverted index from name substrings to the
// application names containing them.
package substr

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/workpool"
)

const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	entries map[string][]apptext.String
}

// Index maps every grapheme window of every indexed name, case-folded, to the
// names containing it. Inserts and reads may run concurrently.
type Index struct {
	shards [shardCount]shard
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string][]apptext.String)
	}
	return idx
}

// Build indexes every application name in c, spreading names across pool.
// A nil pool builds on the caller.
func Build(c apps.Catalog, pool *workpool.Pool) *Index {
	idx := New()
	pool.Run(c.Len(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			idx.Add(c.At(i).Name)
		}
	})
	return idx
}

func (idx *Index) shardFor(key string) *shard {
	return &idx.shards[xxhash.Sum64String(key)%shardCount]
}

// Add registers name under each of its windows of 1 to GraphemeLen graphemes.
func (idx *Index) Add(name apptext.String) {
	n := name.GraphemeLen()
	for w := 1; w <= n; w++ {
		for _, sub := range name.Windows(w) {
			idx.insert(sub.Key(), name)
		}
	}
}

func (idx *Index) insert(key string, name apptext.String) {
	s := idx.shardFor(key)
	s.mu.Lock()
	s.entries[key] = append(s.entries[key], name)
	s.mu.Unlock()
}

// Lookup returns a copy of the names registered under query. The result is
// nil when the key is absent.
func (idx *Index) Lookup(query apptext.String) []apptext.String {
	s := idx.shardFor(query.Key())
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.entries[query.Key()]
	if !ok {
		return nil
	}
	out := make([]apptext.String, len(names))
	copy(out, names)
	return out
}

// Names returns the folded keys of the names registered under query.
func (idx *Index) Names(query apptext.String) map[string]struct{} {
	names := idx.Lookup(query)
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n.Key()] = struct{}{}
	}
	return set
}

// Len returns the number of distinct keys.
func (idx *Index) Len() int {
	total := 0
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
