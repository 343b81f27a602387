// Package procs lists the programs currently running, read from a procfs
// mount.
package procs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRoot is the usual procfs mount point.
const DefaultRoot = "/proc"

// commLen is the kernel's limit on /proc/<pid>/comm, without the newline.
const commLen = 15

// Set holds the executables and command names of running processes.
type Set struct {
	paths map[string]struct{}
	names map[string]struct{}
}

// Running reads every numeric entry under root. Processes that vanish or
// deny access while being read are skipped; failing to list root is an
// error.
func Running(root string) (Set, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return Set{}, fmt.Errorf("failed to list processes in %s: %w", root, err)
	}

	set := Set{
		paths: make(map[string]struct{}),
		names: make(map[string]struct{}),
	}
	for _, e := range entries {
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
			exe = strings.TrimSuffix(exe, " (deleted)")
			set.paths[exe] = struct{}{}
			set.names[truncate(filepath.Base(exe))] = struct{}{}
		}
		if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
			if name := strings.TrimSpace(string(comm)); name != "" {
				set.names[truncate(name)] = struct{}{}
			}
		}
	}
	return set, nil
}

func truncate(name string) string {
	if len(name) > commLen {
		return name[:commLen]
	}
	return name
}

// Has reports whether program is running. Absolute paths match the process
// executable; anything else matches by base name.
func (s Set) Has(program string) bool {
	if program == "" {
		return false
	}
	if filepath.IsAbs(program) {
		if _, ok := s.paths[program]; ok {
			return true
		}
	}
	_, ok := s.names[truncate(filepath.Base(program))]
	return ok
}

// Len returns the number of distinct names seen.
func (s Set) Len() int { return len(s.names) }
