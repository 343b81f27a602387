package executable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ExecutableInfo contains information about an executable file
type ExecutableInfo struct {
	Name string // Executable name
	Path string // Full path to executable
}

// ScanPaths scans executable files in the given paths and closes resultChan
// when done. Unreadable paths are skipped; it returns the number of paths
// that could be read.
func ScanPaths(ctx context.Context, paths []string, resultChan chan<- *ExecutableInfo) (int, error) {
	defer close(resultChan)

	readable := 0
	for _, path := range paths {
		err := scanPath(ctx, path, resultChan)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return readable, err
		}
		if err != nil {
			// Continue scanning other paths even if one fails
			continue
		}
		readable++
	}
	return readable, nil
}

func scanPath(ctx context.Context, rootPath string, resultChan chan<- *ExecutableInfo) error {
	if _, err := os.Stat(rootPath); err != nil {
		return err
	}
	return filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Skip directories we can't access
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if !IsExecutable(info) {
			return nil
		}

		// Skip hidden files (starting with .)
		baseName := filepath.Base(path)
		if strings.HasPrefix(baseName, ".") {
			return nil
		}

		select {
		case resultChan <- &ExecutableInfo{Name: baseName, Path: path}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// IsExecutable reports whether info is a regular file with an execute bit.
func IsExecutable(info os.FileInfo) bool {
	mode := info.Mode()
	return mode.IsRegular() && mode&0111 != 0
}

// Find resolves name the way a shell would: absolute or relative paths are
// checked as given, bare names are searched in dirs.
func Find(name string, dirs []string) (string, bool) {
	if name == "" {
		return "", false
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		if info, err := os.Stat(name); err == nil && IsExecutable(info) {
			return name, true
		}
		return "", false
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && IsExecutable(info) {
			return path, true
		}
	}
	return "", false
}
