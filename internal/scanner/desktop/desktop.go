package desktop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoDirectory is returned when none of the application directories can
// be read.
var ErrNoDirectory = errors.New("no readable application directory")

// DesktopEntry represents a parsed .desktop file
type DesktopEntry struct {
	ID         string            // Desktop file ID, e.g. org.gnome.Terminal.desktop
	Name       string            // Default name
	Names      map[string]string // Localized names (locale -> name)
	Exec       string            // Exec command
	TryExec    string            // Binary that must exist for the entry to be shown
	Icon       string            // Icon name or absolute path
	Type       string            // Application, Link or Directory
	Terminal   bool              // Whether to run in terminal
	NoDisplay  bool
	Hidden     bool
	Categories []string // Application categories
	Path       string   // Path to .desktop file
}

// Visible reports whether the entry should be offered to the user.
func (d *DesktopEntry) Visible() bool {
	if d.NoDisplay || d.Hidden {
		return false
	}
	return d.Type == "" || d.Type == "Application"
}

// ScanDesktopFiles walks every directory in dirs and then parses the
// explicit files, sending each parsed entry to resultChan. A desktop file ID
// seen in an earlier directory shadows later ones. The channel is closed on
// return. It fails only when dirs is not empty and none of them could be
// read, and no explicit file was given.
func ScanDesktopFiles(ctx context.Context, dirs, files []string, resultChan chan<- *DesktopEntry) error {
	defer close(resultChan)

	seen := make(map[string]bool)
	readable := 0
	for _, dir := range dirs {
		err := scanDesktopPath(ctx, dir, seen, resultChan)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			// Continue scanning other paths
			continue
		}
		readable++
	}

	for _, path := range files {
		entry, err := ParseDesktopFile(path)
		if err != nil {
			continue
		}
		if seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		select {
		case resultChan <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(dirs) > 0 && readable == 0 && len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrNoDirectory, strings.Join(dirs, ":"))
	}
	return nil
}

func scanDesktopPath(ctx context.Context, rootPath string, seen map[string]bool, resultChan chan<- *DesktopEntry) error {
	if _, err := os.Stat(rootPath); err != nil {
		return err
	}
	return filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".desktop") {
			return nil
		}

		entry, err := ParseDesktopFile(path)
		if err != nil {
			// Skip invalid files
			return nil
		}
		if rel, err := filepath.Rel(rootPath, path); err == nil {
			entry.ID = strings.ReplaceAll(filepath.ToSlash(rel), "/", "-")
		}
		if seen[entry.ID] {
			return nil
		}
		seen[entry.ID] = true

		select {
		case resultChan <- entry:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// ParseDesktopFile parses a single .desktop file
func ParseDesktopFile(path string) (*DesktopEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entry := &DesktopEntry{
		ID:    filepath.Base(path),
		Path:  path,
		Names: make(map[string]string),
	}

	scanner := bufio.NewScanner(file)
	var inDesktopEntry bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDesktopEntry = strings.Trim(line, "[]") == "Desktop Entry"
			continue
		}

		if !inDesktopEntry {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Name":
			entry.Name = value
		case "Exec":
			entry.Exec = value
		case "TryExec":
			entry.TryExec = value
		case "Icon":
			entry.Icon = value
		case "Type":
			entry.Type = value
		case "Terminal":
			entry.Terminal = parseBool(value)
		case "NoDisplay":
			entry.NoDisplay = parseBool(value)
		case "Hidden":
			entry.Hidden = parseBool(value)
		case "Categories":
			// Categories are semicolon-separated
			for _, cat := range strings.Split(value, ";") {
				if cat = strings.TrimSpace(cat); cat != "" {
					entry.Categories = append(entry.Categories, cat)
				}
			}
		default:
			if strings.HasPrefix(key, "Name[") && strings.HasSuffix(key, "]") {
				entry.Names[key[5:len(key)-1]] = value
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if entry.Name == "" && entry.Exec == "" {
		return nil, fmt.Errorf("%s: missing Name and Exec", path)
	}
	if entry.Name == "" {
		entry.Name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}

	return entry, nil
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true")
}

// GetLocalizedName returns the name for a POSIX locale such as
// "de_DE.UTF-8@euro", trying lang_COUNTRY@MODIFIER, lang_COUNTRY,
// lang@MODIFIER and lang in turn before the default name.
func (d *DesktopEntry) GetLocalizedName(locale string) string {
	if locale == "" || locale == "C" || locale == "POSIX" {
		return d.Name
	}

	locale, modifier, _ := strings.Cut(locale, "@")
	locale, _, _ = strings.Cut(locale, ".")
	locale = strings.ReplaceAll(locale, "-", "_")
	lang, _, _ := strings.Cut(locale, "_")

	candidates := []string{locale, lang}
	if modifier != "" {
		candidates = []string{locale + "@" + modifier, locale, lang + "@" + modifier, lang}
	}
	for _, c := range candidates {
		if name, ok := d.Names[c]; ok && name != "" {
			return name
		}
	}

	return d.Name
}

// ExpandExecCommand expands %-codes in Exec command
func (d *DesktopEntry) ExpandExecCommand(filePath string) string {
	exec := d.Exec

	exec = strings.ReplaceAll(exec, "%f", filePath)
	exec = strings.ReplaceAll(exec, "%F", filePath)
	exec = strings.ReplaceAll(exec, "%u", filePath)
	exec = strings.ReplaceAll(exec, "%U", filePath)
	exec = strings.ReplaceAll(exec, "%i", "")
	exec = strings.ReplaceAll(exec, "%c", d.Name)
	exec = strings.ReplaceAll(exec, "%k", d.Path)

	return CleanExecCommand(exec)
}

func removeFieldCodes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+1 < len(s) {
			next := s[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					result.WriteByte('%')
				}
				i += 2
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

// CleanExecCommand removes field codes and extra spaces from exec command
func CleanExecCommand(exec string) string {
	exec = removeFieldCodes(exec)
	return strings.Join(strings.Fields(exec), " ")
}

// Binary returns the program an Exec line starts, without arguments.
func Binary(exec string) string {
	fields := strings.Fields(exec)
	if len(fields) == 0 {
		return ""
	}
	// env VAR=value prog ...
	if filepath.Base(fields[0]) == "env" {
		for _, f := range fields[1:] {
			if !strings.Contains(f, "=") && !strings.HasPrefix(f, "-") {
				return strings.Trim(f, `"'`)
			}
		}
		return ""
	}
	return strings.Trim(fields[0], `"'`)
}
