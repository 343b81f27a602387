// Package store persists small JSON-encodable values under string keys.
//
// All drivers share the same contract: Get decodes the value stored under a
// key into v, Put replaces it. Values are encoded independently, so one
// corrupt key does not hide the others.
package store

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrNotFound is returned by Get when nothing is stored under the key.
	ErrNotFound = errors.New("key not found")

	// ErrCorrupt is returned when stored data cannot be decoded.
	ErrCorrupt = errors.New("stored data is corrupt")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// Store is the persistence contract used by the engine.
type Store interface {
	Get(key string, v any) error
	Put(key string, v any) error
	Close() error
}

// Driver identifies a store backend.
type Driver string

const (
	// DriverJSON keeps every key in one JSON document rewritten on each Put.
	DriverJSON Driver = "json"
	// DriverBolt keeps keys in a bbolt bucket.
	DriverBolt Driver = "bolt"
	// DriverSQLite keeps keys in an SQLite state table.
	DriverSQLite Driver = "sqlite"
	// DriverMemory keeps keys in process memory only.
	DriverMemory Driver = "memory"
)

const (
	documentFile = "fetchd.data.json"
	boltFile     = "fetchd.bolt"
	sqliteFile   = "fetchd.db"
)

// Open selects a driver and opens its default file inside dir.
func Open(driver Driver, dir string) (Store, error) {
	switch driver {
	case DriverJSON, "":
		return OpenDocument(filepath.Join(dir, documentFile))
	case DriverBolt:
		return OpenBolt(filepath.Join(dir, boltFile))
	case DriverSQLite:
		return OpenSQLite(filepath.Join(dir, sqliteFile))
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
