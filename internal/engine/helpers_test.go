package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSource serves a settable catalog and counts enumerations.
type fakeSource struct {
	mu    sync.Mutex
	list  []apps.Application
	err   error
	calls int
}

func newFakeSource(names ...string) *fakeSource {
	s := &fakeSource{}
	s.set(names...)
	return s
}

func (s *fakeSource) set(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = s.list[:0]
	for _, n := range names {
		s.list = append(s.list, app(n))
	}
}

func (s *fakeSource) add(a apps.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, a)
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) Enumerate(ctx context.Context) (apps.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return apps.Catalog{}, s.err
	}
	return apps.NewCatalog(s.list), nil
}

func app(name string) apps.Application {
	return apps.Application{Name: apptext.New(name), Path: "/usr/share/applications/" + name + ".desktop", Exec: name}
}

func q(s string) apptext.String { return apptext.New(s) }

func namesOf(list []apps.Application) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Name.String()
	}
	return out
}
