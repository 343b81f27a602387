package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
)

const fetchrc = "~/.config/ade/fetchd.rc"

var (
	globalConfig *config
	once         sync.Once
)

type config struct {
	static  env
	dynamic rc
	rcPath  string
	watcher *fsnotify.Watcher

	listenersMu sync.Mutex
	listeners   []func()
}

type (
	env struct {
		Path        string `envconfig:"PATH"`
		Terminal    string `envconfig:"ADE_DEFAULT_TERM"`
		UnixSocket  string `envconfig:"ADE_FETCHD_SOCK"`
		Workers     int    `envconfig:"ADE_FETCHD_WORKERS" default:"4"`
		ListLimit   int    `envconfig:"ADE_FETCHD_LIST_LIMIT" default:"128"`
		Store       string `envconfig:"ADE_FETCHD_STORE" default:"json"`
		DataDir     string `envconfig:"ADE_FETCHD_DATA_DIR"`
		IconTheme   string `envconfig:"ADE_FETCHD_ICON_THEME" default:"hicolor"`
		IconMinSize int    `envconfig:"ADE_FETCHD_ICON_MIN_SIZE" default:"32"`
		IndexPath   bool   `envconfig:"ADE_FETCHD_INDEX_PATH" default:"false"`
		ResetTokens bool   `envconfig:"ADE_FETCHD_RESET_TOKENS" default:"false"`
		Incremental int    `envconfig:"ADE_FETCHD_INCREMENTAL" default:"0"`
		LogLevel    string `envconfig:"ADE_FETCHD_LOG_LEVEL" default:"info"`
		XDGDataHome string `envconfig:"XDG_DATA_HOME"`
		XDGDataDirs string `envconfig:"XDG_DATA_DIRS"`
		Lang        string `envconfig:"LANG"`
		LCAll       string `envconfig:"LC_ALL"`
		LCMessages  string `envconfig:"LC_MESSAGES"`
	}
	rc struct {
		sync.RWMutex
		additionalPaths []string
		desktopFiles    []string
		shortcuts       map[string]string
	}
)

// defaultShortcuts are available unless the rc file redefines them.
var defaultShortcuts = map[string]string{
	"hn": "https://news.ycombinator.com",
	"gh": "https://github.com",
}

// Init initializes and loads configuration
func Init() error {
	var err error
	once.Do(func() {
		globalConfig, err = load(expandPath(fetchrc))
		if err != nil {
			return
		}

		// Setup file watcher
		err = globalConfig.setupWatcher()
	})
	return err
}

// Run starts the configuration watcher loop
func Run() error {
	if globalConfig == nil {
		if err := Init(); err != nil {
			return err
		}
	}

	go globalConfig.watchLoop()
	return nil
}

// Get returns the global config instance
func Get() *config {
	if globalConfig == nil {
		Init()
	}
	return globalConfig
}

// load reads the environment and the rc file at rcPath.
func load(rcPath string) (*config, error) {
	c := &config{rcPath: rcPath}

	if err := envconfig.Process("", &c.static); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Set default socket path if not provided
	if c.static.UnixSocket == "" {
		currentUser, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("failed to look up current user: %w", err)
		}
		c.static.UnixSocket = fmt.Sprintf("/tmp/ade-%s/fetchd", currentUser.Uid)
	}
	c.static.UnixSocket = expandPath(c.static.UnixSocket)

	if c.static.DataDir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate cache directory: %w", err)
		}
		c.static.DataDir = filepath.Join(cache, "ade")
	}
	c.static.DataDir = expandPath(c.static.DataDir)

	if err := c.loadRC(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", rcPath, err)
	}
	return c, nil
}

func (c *config) loadRC() error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(c.rcPath), 0750); err != nil {
		return err
	}

	file, err := os.Open(c.rcPath)
	if err != nil {
		if os.IsNotExist(err) {
			file, err = os.Create(c.rcPath)
			if err != nil {
				return err
			}
			file.Close()
			return nil
		}
		return err
	}
	defer file.Close()

	dirs, files, shortcuts, err := parseRC(file)
	if err != nil {
		return err
	}

	c.dynamic.Lock()
	c.dynamic.additionalPaths = dirs
	c.dynamic.desktopFiles = files
	c.dynamic.shortcuts = shortcuts
	c.dynamic.Unlock()
	return nil
}

// parseRC splits rc lines into extra directories, extra .desktop files and
// "@name url" shortcuts.
func parseRC(r io.Reader) (dirs, files []string, shortcuts map[string]string, err error) {
	dirs, files, shortcuts = []string{}, []string{}, map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "@"); ok {
			name, url, found := strings.Cut(rest, " ")
			url = strings.TrimSpace(url)
			if !found || name == "" || url == "" {
				slog.Warn("ignoring malformed shortcut", "line", line)
				continue
			}
			shortcuts[name] = url
			continue
		}
		expanded := expandPath(line)
		if strings.HasSuffix(expanded, ".desktop") {
			files = append(files, expanded)
		} else {
			dirs = append(dirs, expanded)
		}
	}
	return dirs, files, shortcuts, scanner.Err()
}

func (c *config) setupWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	c.watcher = watcher

	// Watch the directory
	if err := watcher.Add(filepath.Dir(c.rcPath)); err != nil {
		return err
	}

	return nil
}

func (c *config) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Name == c.rcPath && (event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)) {
				c.reload()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (c *config) reload() {
	if err := c.loadRC(); err != nil {
		slog.Error("failed to reload config", "path", c.rcPath, "error", err)
		return
	}
	slog.Info("config reloaded", "path", c.rcPath)

	c.listenersMu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnReload registers fn to run after every successful rc reload.
func (c *config) OnReload(fn func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Close stops watching the rc file.
func (c *config) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// Path returns all paths to search (PATH + additional paths from rc)
func (c *config) Path() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()

	filtered := splitList(c.static.Path)
	filtered = append(filtered, c.dynamic.additionalPaths...)
	return filtered
}

// DataDirs returns XDG_DATA_HOME followed by XDG_DATA_DIRS, with the
// freedesktop defaults for unset variables.
func (c *config) DataDirs() []string {
	home := c.static.XDGDataHome
	if home == "" {
		home = expandPath("~/.local/share")
	}
	dirs := splitList(c.static.XDGDataDirs)
	if len(dirs) == 0 {
		dirs = []string{"/usr/local/share", "/usr/share"}
	}
	return append([]string{home}, dirs...)
}

// DesktopDirs returns the applications directory of every data dir, then
// the extra directories from rc.
func (c *config) DesktopDirs() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()

	var dirs []string
	for _, d := range c.DataDirs() {
		dirs = append(dirs, filepath.Join(d, "applications"))
	}
	return append(dirs, c.dynamic.additionalPaths...)
}

// DesktopFiles returns the explicit .desktop files listed in rc.
func (c *config) DesktopFiles() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return append([]string(nil), c.dynamic.desktopFiles...)
}

// Shortcut returns the URL a shortcut name opens. rc entries override the
// built-in ones.
func (c *config) Shortcut(name string) (string, bool) {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	if url, ok := c.dynamic.shortcuts[name]; ok {
		return url, true
	}
	url, ok := defaultShortcuts[name]
	return url, ok
}

// Terminal returns the default terminal command
func (c *config) Terminal() string {
	if c.static.Terminal != "" {
		return c.static.Terminal
	}
	// Fallback to TERM env var
	if term := os.Getenv("TERM"); term != "" {
		return term
	}
	return "xterm" // Ultimate fallback
}

// UnixSocket returns the Unix socket path
func (c *config) UnixSocket() string {
	return c.static.UnixSocket
}

// Workers returns the size of the search worker pool
func (c *config) Workers() int {
	if c.static.Workers <= 0 {
		return 4 // Default
	}
	return c.static.Workers
}

// ListLimit returns the configured list limit
func (c *config) ListLimit() int {
	if c.static.ListLimit <= 0 {
		return 128 // Default
	}
	return c.static.ListLimit
}

// Store returns the persistence driver name.
func (c *config) Store() string {
	return strings.ToLower(c.static.Store)
}

// DataDir returns where persistent state is kept.
func (c *config) DataDir() string {
	return c.static.DataDir
}

// IconTheme returns the preferred icon theme.
func (c *config) IconTheme() string {
	return c.static.IconTheme
}

// IconMinSize returns the smallest icon size considered usable.
func (c *config) IconMinSize() int {
	if c.static.IconMinSize <= 0 {
		return 32
	}
	return c.static.IconMinSize
}

// IndexPath reports whether $PATH executables join the catalog.
func (c *config) IndexPath() bool {
	return c.static.IndexPath
}

// ResetTokens reports whether refreshes reset the deferred token counter.
func (c *config) ResetTokens() bool {
	return c.static.ResetTokens
}

// Incremental returns the prefix step for incremental deferred results, 0
// for final-only delivery.
func (c *config) Incremental() int {
	if c.static.Incremental < 0 {
		return 0
	}
	return c.static.Incremental
}

// Locale returns the message locale, honouring LC_ALL and LC_MESSAGES
// before LANG.
func (c *config) Locale() string {
	for _, l := range []string{c.static.LCAll, c.static.LCMessages, c.static.Lang} {
		if l != "" {
			return l
		}
	}
	return ""
}

// LogLevel returns the configured slog level, info when unrecognised.
func (c *config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.static.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(s string) []string {
	parts := strings.Split(s, ":")
	// Filter empty paths
	filtered := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}
