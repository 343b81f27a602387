// Package watcher refreshes the application catalog when application
// directories change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	defaultDebounce    = 500 * time.Millisecond
	defaultMinInterval = 2 * time.Second
)

// RefreshFunc re-enumerates the catalog, reporting whether it changed.
type RefreshFunc func(ctx context.Context) (bool, error)

// Config contains watcher configuration
type Config struct {
	Dirs        []string      // directories to watch; missing ones are skipped
	Debounce    time.Duration // quiet period after the last event
	MinInterval time.Duration // lower bound between two refreshes
}

// Watcher turns bursts of filesystem events into rate limited refreshes.
type Watcher struct {
	config    Config
	refresh   RefreshFunc
	logger    *slog.Logger
	fsw       *fsnotify.Watcher
	limiter   *rate.Limiter
	debouncer *Debouncer
	kick      chan struct{}
	refreshes atomic.Int64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher. Zero durations take defaults. A nil logger uses
// slog.Default().
func New(config Config, refresh RefreshFunc, logger *slog.Logger) (*Watcher, error) {
	if refresh == nil {
		return nil, errors.New("refresh function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	if config.MinInterval <= 0 {
		config.MinInterval = defaultMinInterval
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	return &Watcher{
		config:    config,
		refresh:   refresh,
		logger:    logger,
		fsw:       fsw,
		limiter:   rate.NewLimiter(rate.Every(config.MinInterval), 1),
		debouncer: NewDebouncer(config.Debounce),
		kick:      make(chan struct{}, 1),
	}, nil
}

// Start watches every existing directory and begins refreshing on change.
// It returns the number of directories watched.
func (w *Watcher) Start(ctx context.Context) int {
	watched := w.Watch(w.config.Dirs...)

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.refreshLoop(ctx)

	w.logger.Info("watching application directories", "dirs", watched, "debounce", w.config.Debounce)
	return watched
}

// Watch adds dirs to the watched set and returns how many of them exist.
// Directories already watched are counted again. It is safe to call while
// the watcher runs.
func (w *Watcher) Watch(dirs ...string) int {
	watched := 0
	for _, dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Debug("not watching directory", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	return watched
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.debouncer.Cancel()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			w.logger.Debug("application directory changed", "path", event.Name, "op", event.Op.String())
			w.debouncer.Trigger(w.schedule)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watcher error", "error", err)
		}
	}
}

// schedule coalesces with a refresh that is already queued.
func (w *Watcher) schedule() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) refreshLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		changed, err := w.refresh(ctx)
		w.refreshes.Add(1)
		if err != nil {
			w.logger.Error("refresh after filesystem change failed", "error", err)
			continue
		}
		w.logger.Debug("refresh after filesystem change", "changed", changed)
	}
}

// Refreshes returns how many refreshes the watcher ran.
func (w *Watcher) Refreshes() int64 {
	return w.refreshes.Load()
}

// Close stops watching and waits for a running refresh to return.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.debouncer.Cancel()
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}
