// Package icon resolves freedesktop icon names to PNG bytes.
package icon

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// fallbackTheme is searched after the configured theme.
const fallbackTheme = "hicolor"

// Finder looks icons up in <dataDir>/icons/<theme>/<N>x<N>/apps and
// <dataDir>/pixmaps.
type Finder struct {
	DataDirs []string
	Theme    string
	MinSize  int
}

type candidate struct {
	size int
	path string
}

// Load returns the PNG for name, or nil when nothing usable is found. Among
// fixed-size theme variants it prefers the smallest one at least MinSize
// wide, and the largest one when all are smaller.
func (f *Finder) Load(name string) []byte {
	if name == "" {
		return nil
	}
	if filepath.IsAbs(name) {
		return readPNG(name)
	}
	name = strings.TrimSuffix(name, ".png")

	themes := []string{f.Theme}
	if f.Theme != fallbackTheme {
		themes = append(themes, fallbackTheme)
	}
	for _, theme := range themes {
		if theme == "" {
			continue
		}
		for _, c := range f.ordered(f.candidates(theme, name)) {
			if data := readPNG(c.path); data != nil {
				return data
			}
		}
	}

	for _, dir := range f.DataDirs {
		if data := readPNG(filepath.Join(dir, "pixmaps", name+".png")); data != nil {
			return data
		}
	}
	return nil
}

func (f *Finder) candidates(theme, name string) []candidate {
	var out []candidate
	for _, dir := range f.DataDirs {
		root := filepath.Join(dir, "icons", theme)
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			size, ok := parseSize(e.Name())
			if !ok {
				continue
			}
			path := filepath.Join(root, e.Name(), "apps", name+".png")
			if _, err := os.Stat(path); err == nil {
				out = append(out, candidate{size: size, path: path})
			}
		}
	}
	return out
}

// ordered puts sizes >= MinSize first, ascending, then the smaller ones,
// descending.
func (f *Finder) ordered(cands []candidate) []candidate {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		aOK, bOK := a.size >= f.MinSize, b.size >= f.MinSize
		switch {
		case aOK && !bOK:
			return -1
		case !aOK && bOK:
			return 1
		case aOK:
			return a.size - b.size
		default:
			return b.size - a.size
		}
	})
	return cands
}

// parseSize accepts directory names like "48x48" and "48x48@2".
func parseSize(dir string) (int, bool) {
	dir, _, _ = strings.Cut(dir, "@")
	w, h, ok := strings.Cut(dir, "x")
	if !ok || w != h {
		return 0, false
	}
	n, err := strconv.Atoi(w)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func readPNG(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil
	}
	return data
}
