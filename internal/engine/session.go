package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
)

// Session tracks the queries typed during one launcher interaction so the
// application finally opened can be learned for each of them.
type Session struct {
	engine SearchEngine
	logger *slog.Logger

	mu      sync.Mutex
	history []apptext.String
}

// NewSession starts an empty session on e. A nil logger uses slog.Default().
func NewSession(e SearchEngine, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{engine: e, logger: logger}
}

func (s *Session) push(q apptext.String) {
	if q.IsEmpty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 && s.history[n-1].String() == q.String() {
		return
	}
	s.history = append(s.history, q)
}

// Search records query in the history and ranks it.
func (s *Session) Search(query apptext.String) []apps.Application {
	s.push(query)
	return s.engine.BlockingSearch(query)
}

// Deferred records query in the history and starts a deferred search.
func (s *Session) Deferred(query apptext.String) (uint64, *Subscription) {
	s.push(query)
	return s.engine.DeferredSearch(query)
}

// History returns the queries typed so far.
func (s *Session) History() []apptext.String {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Finish ends the interaction. When opened is not nil it is learned for
// every query of the history. The catalog is refreshed either way and the
// history starts over. A failed save does not stop the refresh.
func (s *Session) Finish(ctx context.Context, opened *apps.Application) error {
	s.mu.Lock()
	history := s.history
	s.history = nil
	s.mu.Unlock()

	if opened != nil && len(history) > 0 {
		if err := s.engine.Record(history, *opened); err != nil {
			s.logger.Warn("selection learned in memory only", "app", opened.Name.String(), "error", err)
		}
	}

	changed, err := s.engine.Refresh(ctx)
	if err != nil {
		return err
	}
	if changed {
		s.logger.Debug("catalog changed after session")
	}
	return nil
}
