package engine

import (
	"cmp"
	"slices"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
)

// Position locates the first occurrence of a query inside a name: the
// whitespace-separated word it starts in and the grapheme offset within
// that word.
type Position struct {
	Word   int
	Offset int
}

// Compare orders positions lexicographically.
func (p Position) Compare(o Position) int {
	if c := cmp.Compare(p.Word, o.Word); c != 0 {
		return c
	}
	return cmp.Compare(p.Offset, o.Offset)
}

// Distance returns where query first occurs within a single word of name,
// scanning words left to right and offsets within each word left to right.
// When no word contains the query the result is (0, GraphemeLen(name)).
func Distance(query, name apptext.String) Position {
	if n := query.GraphemeLen(); n > 0 {
		for w, word := range name.Fields() {
			for off, window := range word.Windows(n) {
				if window.Equal(query) {
					return Position{Word: w, Offset: off}
				}
			}
		}
	}
	return Position{Word: 0, Offset: name.GraphemeLen()}
}

type rankKey struct {
	exact bool
	pos   Position
}

func (k rankKey) compare(o rankKey) int {
	switch {
	case k.exact && o.exact:
		return 0
	case k.exact:
		return -1
	case o.exact:
		return 1
	}
	return k.pos.Compare(o.pos)
}

type candidate struct {
	app apps.Application
	key rankKey
}

func (e *Engine) rank(st *state, query apptext.String) []apps.Application {
	names := st.index.Names(query)
	if len(names) == 0 {
		return nil
	}

	// Filter. The mask keeps catalog order without merging per-chunk output.
	n := st.catalog.Len()
	keep := make([]bool, n)
	e.pool.Run(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			_, keep[i] = names[st.catalog.At(i).Name.Key()]
		}
	})
	cands := make([]candidate, 0, len(names))
	for i, ok := range keep {
		if ok {
			cands = append(cands, candidate{app: st.catalog.At(i)})
		}
	}

	e.pool.Run(len(cands), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			c := &cands[i]
			if c.app.Name.Equal(query) {
				c.key = rankKey{exact: true}
				continue
			}
			c.key = rankKey{pos: Distance(query, c.app.Name)}
		}
	})

	// Name order is the tie-break for equal rank keys.
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if c := a.key.compare(b.key); c != 0 {
			return c
		}
		return a.app.Name.Compare(b.app.Name)
	})

	out := make([]apps.Application, len(cands))
	for i := range cands {
		out[i] = cands[i].app
	}

	if target, ok := e.learned.Lookup(query); ok {
		out = promote(out, target.Name)
	}
	return out
}

// promote moves every application named name to the front, keeping the
// relative order inside both groups.
func promote(list []apps.Application, name apptext.String) []apps.Application {
	out := make([]apps.Application, 0, len(list))
	for _, a := range list {
		if a.Name.Equal(name) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return list
	}
	for _, a := range list {
		if !a.Name.Equal(name) {
			out = append(out, a)
		}
	}
	return out
}
