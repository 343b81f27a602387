// Package scanner enumerates the applications installed on a Linux desktop:
// freedesktop .desktop entries, optionally the executables on $PATH, their
// running state from procfs and their theme icons.
package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/scanner/desktop"
	"github.com/0xADE/ade-fetchd/internal/scanner/executable"
	"github.com/0xADE/ade-fetchd/internal/scanner/icon"
	"github.com/0xADE/ade-fetchd/internal/scanner/procs"
)

// iconLoaders bounds concurrent icon reads.
const iconLoaders = 8

// Config selects what the scanner looks at.
type Config struct {
	DesktopDirs  []string // walked recursively for .desktop files
	DesktopFiles []string // explicit extra .desktop files
	ExecDirs     []string // indexed as plain executables when IndexExecs is set
	IndexExecs   bool
	SearchPath   []string // resolves TryExec and bare Exec binaries
	Locale       string
	Icons        icon.Finder
	ProcRoot     string
}

// Scanner implements apps.Source.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

var _ apps.Source = (*Scanner)(nil)

// New returns a scanner. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProcRoot == "" {
		cfg.ProcRoot = procs.DefaultRoot
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// Enumerate scans desktop entries, executables and running processes in
// parallel and assembles the catalog. It fails when processes cannot be
// listed or no application directory is readable.
func (s *Scanner) Enumerate(ctx context.Context) (apps.Catalog, error) {
	g, gctx := errgroup.WithContext(ctx)

	desktopChan := make(chan *desktop.DesktopEntry, 100)
	execChan := make(chan *executable.ExecutableInfo, 100)

	g.Go(func() error {
		return desktop.ScanDesktopFiles(gctx, s.cfg.DesktopDirs, s.cfg.DesktopFiles, desktopChan)
	})

	var execDirs []string
	if s.cfg.IndexExecs {
		execDirs = s.cfg.ExecDirs
	}
	g.Go(func() error {
		readable, err := executable.ScanPaths(gctx, execDirs, execChan)
		if err == nil && readable < len(execDirs) {
			s.logger.Debug("some executable directories were skipped", "readable", readable, "configured", len(execDirs))
		}
		return err
	})

	var running procs.Set
	g.Go(func() error {
		var err error
		running, err = procs.Running(s.cfg.ProcRoot)
		return err
	})

	var entries []*desktop.DesktopEntry
	var execs []*executable.ExecutableInfo
	g.Go(func() error {
		for desktopChan != nil || execChan != nil {
			select {
			case d, ok := <-desktopChan:
				if !ok {
					desktopChan = nil
					continue
				}
				entries = append(entries, d)
			case e, ok := <-execChan:
				if !ok {
					execChan = nil
					continue
				}
				execs = append(execs, e)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return apps.Catalog{}, fmt.Errorf("failed to scan applications: %w", err)
	}

	list := make([]apps.Application, 0, len(entries)+len(execs))
	for _, d := range entries {
		a, ok := s.fromDesktop(d, running)
		if ok {
			list = append(list, a)
		}
	}
	for _, e := range execs {
		list = append(list, apps.Application{
			Name:    apptext.New(e.Name),
			Path:    e.Path,
			Exec:    e.Path,
			Running: running.Has(e.Path),
		})
	}

	if err := s.loadIcons(ctx, list, entries); err != nil {
		return apps.Catalog{}, err
	}

	catalog := apps.NewCatalog(list)
	s.logger.Debug("applications enumerated",
		"desktop", len(entries), "executables", len(execs), "catalog", catalog.Len(), "running", running.Len())
	return catalog, nil
}

func (s *Scanner) fromDesktop(d *desktop.DesktopEntry, running procs.Set) (apps.Application, bool) {
	if !d.Visible() {
		return apps.Application{}, false
	}
	if d.TryExec != "" {
		if _, found := executable.Find(d.TryExec, s.cfg.SearchPath); !found {
			return apps.Application{}, false
		}
	}

	exec := d.ExpandExecCommand("")
	bin := desktop.Binary(exec)
	if path, found := executable.Find(bin, s.cfg.SearchPath); found {
		bin = path
	}
	return apps.Application{
		Name:     apptext.New(d.GetLocalizedName(s.cfg.Locale)),
		Path:     d.Path,
		Exec:     exec,
		Terminal: d.Terminal,
		Running:  running.Has(bin),
	}, true
}

// loadIcons attaches icons to the desktop applications in list. Missing or
// broken icons leave the field nil.
func (s *Scanner) loadIcons(ctx context.Context, list []apps.Application, entries []*desktop.DesktopEntry) error {
	names := make(map[string]string, len(entries))
	for _, d := range entries {
		if d.Icon != "" {
			names[d.Path] = d.Icon
		}
	}
	if len(names) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(iconLoaders)
	for i := range list {
		name, ok := names[list[i].Path]
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			list[i].Icon = s.cfg.Icons.Load(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load icons: %w", err)
	}
	return nil
}
