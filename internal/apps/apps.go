// Package apps defines the application record and the catalog the search
// engine ranks over.
package apps

import (
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/0xADE/ade-fetchd/internal/apptext"
)

// Application describes one launchable program. Path is the primary key.
type Application struct {
	Name     apptext.String `json:"name"`
	Path     string         `json:"path"`               // .desktop file or executable
	Exec     string         `json:"exec,omitempty"`     // command line, field codes stripped
	Terminal bool           `json:"terminal,omitempty"` // run inside a terminal emulator
	Running  bool           `json:"running"`
	Icon     []byte         `json:"icon,omitempty"` // PNG bytes, nil when unavailable
}

// Equal reports whether every field of a and b matches.
func (a Application) Equal(b Application) bool {
	return a.Path == b.Path &&
		a.Name.String() == b.Name.String() &&
		a.Exec == b.Exec &&
		a.Terminal == b.Terminal &&
		a.Running == b.Running &&
		bytes.Equal(a.Icon, b.Icon)
}

// Catalog is the ordered set of known applications. It is replaced
// wholesale and never mutated after construction.
type Catalog struct {
	apps []Application
}

// NewCatalog orders apps by path and drops later duplicates of a path.
func NewCatalog(list []Application) Catalog {
	sorted := slices.Clone(list)
	slices.SortStableFunc(sorted, func(a, b Application) int {
		return strings.Compare(a.Path, b.Path)
	})
	sorted = slices.CompactFunc(sorted, func(a, b Application) bool {
		return a.Path == b.Path
	})
	return Catalog{apps: sorted}
}

// Len returns the number of applications.
func (c Catalog) Len() int { return len(c.apps) }

// At returns the i-th application in path order.
func (c Catalog) At(i int) Application { return c.apps[i] }

// All returns a copy of the applications in path order.
func (c Catalog) All() []Application { return slices.Clone(c.apps) }

// Lookup finds an application by path.
func (c Catalog) Lookup(path string) (Application, bool) {
	i, ok := slices.BinarySearchFunc(c.apps, path, func(a Application, p string) int {
		return strings.Compare(a.Path, p)
	})
	if !ok {
		return Application{}, false
	}
	return c.apps[i], true
}

// Equal reports whether both catalogs hold the same records. Catalogs are
// kept in path order, so this is set equality by full record.
func (c Catalog) Equal(o Catalog) bool {
	return slices.EqualFunc(c.apps, o.apps, Application.Equal)
}

// Source enumerates the installed applications. A returned error means the
// enumeration as a whole failed; per-application problems must be absorbed.
type Source interface {
	Enumerate(ctx context.Context) (Catalog, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Catalog, error)

// Enumerate calls f.
func (f SourceFunc) Enumerate(ctx context.Context) (Catalog, error) { return f(ctx) }
