package engine

import "errors"

var (
	// ErrSuperseded ends a subscription once a newer deferred search exists.
	ErrSuperseded = errors.New("search superseded by a newer query")

	// ErrDone is returned by Next after the final snapshot was delivered.
	ErrDone = errors.New("search finished")

	// ErrClosed is returned once the engine is closed.
	ErrClosed = errors.New("engine closed")

	// ErrSourceRequired is returned by New without a catalog source.
	ErrSourceRequired = errors.New("catalog source is required")

	// ErrStoreRequired is returned by New without a store.
	ErrStoreRequired = errors.New("store is required")
)
