package engine

import "log/slog"

type options struct {
	logger      *slog.Logger
	workers     int
	resetTokens bool
	incremental int
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers sets the size of the ranking and indexing pool.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithTokenReset makes every refresh restart the reported deferred tokens,
// so the first search after a refresh gets token 1 again. Searches issued
// before the refresh are still superseded by later ones.
func WithTokenReset(reset bool) Option {
	return func(o *options) {
		o.resetTokens = reset
	}
}

// WithIncrementalDelivery publishes deferred results as growing prefixes of
// step entries instead of a single final list. Zero disables it.
func WithIncrementalDelivery(step int) Option {
	return func(o *options) {
		if step < 0 {
			step = 0
		}
		o.incremental = step
	}
}

func defaultOptions() options {
	return options{
		logger:  slog.Default(),
		workers: 4,
	}
}
