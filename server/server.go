package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/engine"
	"github.com/0xADE/ade-fetchd/parser"
)

const (
	defaultTerminal = "xterm"
	optTerminal     = "opt: terminal"
)

// Engine is the part of the search engine the server drives.
type Engine interface {
	engine.SearchEngine
	Catalog() apps.Catalog
	Learned(query apptext.String) (apps.Application, bool)
}

// ShortcutFunc resolves a shortcut name to the URL it opens.
type ShortcutFunc func(name string) (string, bool)

// Launcher starts app and returns its process id. inTerminal asks for the
// command to be wrapped in the terminal emulator.
type Launcher func(app apps.Application, terminal string, inTerminal bool) (int, error)

// Server handles Unix socket connections and command execution
type Server struct {
	listener net.Listener
	engine   Engine
	logger   *slog.Logger
	limit    int
	terminal string
	launch   Launcher
	shortcut ShortcutFunc
	ctx      context.Context

	running bool
	mu      sync.RWMutex

	cmu     sync.Mutex
	clients map[net.Conn]*client
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithListLimit caps the number of results sent per list. Zero means no cap.
func WithListLimit(n int) Option {
	return func(s *Server) { s.limit = n }
}

// WithTerminal sets the terminal emulator used for terminal applications.
func WithTerminal(term string) Option {
	return func(s *Server) { s.terminal = term }
}

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Server) { s.launch = l }
}

// WithShortcuts sets how shortcut names resolve to URLs.
func WithShortcuts(fn ShortcutFunc) Option {
	return func(s *Server) { s.shortcut = fn }
}

// client is the state of one connection: its launcher session, the list
// last sent to it and the relays streaming deferred results.
type client struct {
	conn    net.Conn
	session *engine.Session
	ctx     context.Context
	cancel  context.CancelFunc
	relays  sync.WaitGroup

	wmu sync.Mutex // one frame at a time

	mu   sync.Mutex
	last []apps.Application
}

func (c *client) write(response string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write([]byte("TXT01" + response))
	return err
}

func (c *client) setLast(list []apps.Application) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = list
}

func (c *client) at(i int64) (apps.Application, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= int64(len(c.last)) {
		return apps.Application{}, false
	}
	return c.last[i], true
}

// NewServer listens on socketPath and serves eng.
func NewServer(socketPath string, eng Engine, opts ...Option) (*Server, error) {
	// Create directory if needed
	socketDir := filepath.Dir(socketPath)
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return nil, err
	}

	// Remove existing socket if it exists
	_ = os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		engine:   eng,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Start accepts connections until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			s.log().Warn("accept failed", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// Stop stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.listener.Close()
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (s *Server) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Server) client(conn net.Conn) *client {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	if c, ok := s.clients[conn]; ok {
		return c
	}
	if s.clients == nil {
		s.clients = make(map[net.Conn]*client)
	}
	ctx, cancel := context.WithCancel(s.baseContext())
	c := &client{
		conn:    conn,
		session: engine.NewSession(s.engine, s.log()),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.clients[conn] = c
	return c
}

// drop forgets conn. A session left open is dismissed so the catalog is
// still refreshed after the launcher goes away.
func (s *Server) drop(conn net.Conn) {
	s.cmu.Lock()
	c, ok := s.clients[conn]
	delete(s.clients, conn)
	s.cmu.Unlock()
	if !ok {
		return
	}
	c.cancel()
	c.relays.Wait()
	if len(c.session.History()) > 0 {
		if err := c.session.Finish(s.baseContext(), nil); err != nil {
			s.log().Warn("refresh after disconnect failed", "error", err)
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.drop(conn)
	defer conn.Close()

	s.log().Debug("new connection accepted")

	p, err := parser.NewParser(conn)
	if err != nil {
		s.log().Error("failed to create parser", "error", err)
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			s.log().Debug("connection closed by client")
			return
		}
		if errors.Is(err, parser.ErrSyntax) {
			s.log().Warn("parse error", "error", err)
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}
		if err != nil {
			s.log().Debug("connection read failed", "error", err)
			return
		}

		s.log().Debug("executing command", "cmd", cmd.Name, "args", len(cmd.Args))
		s.executeCommand(conn, cmd)
	}
}

func (s *Server) executeCommand(conn net.Conn, cmd *parser.Command) {
	switch cmd.Name {
	case parser.CmdSearch:
		s.handleSearch(conn, cmd)
	case parser.CmdQuery:
		s.handleQuery(conn, cmd)
	case parser.CmdRun:
		s.handleRun(conn, cmd)
	case parser.CmdDismiss:
		s.handleDismiss(conn)
	case parser.CmdReindex:
		s.handleReindex(conn, cmd)
	case parser.CmdLearned:
		s.handleLearned(conn, cmd)
	case parser.CmdList:
		s.handleList(conn)
	case parser.CmdOpen:
		s.handleOpen(conn, cmd)
	default:
		s.writeError(conn, cmd.Name, "unknown command", "Command not recognized")
	}
}

// queryArg returns the last string argument.
func queryArg(cmd *parser.Command) (string, bool) {
	strs := cmd.Strings()
	if len(strs) == 0 {
		return "", false
	}
	return strs[len(strs)-1], true
}

func (s *Server) capList(list []apps.Application) []apps.Application {
	if s.limit > 0 && len(list) > s.limit {
		return list[:s.limit]
	}
	return list
}

func formatList(list []apps.Application) string {
	var body strings.Builder
	for i, a := range list {
		fmt.Fprintf(&body, "%d %s\n", i, a.Name)
	}
	return body.String()
}

func boolAttr(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

func (s *Server) handleSearch(conn net.Conn, cmd *parser.Command) {
	query, ok := queryArg(cmd)
	if !ok {
		s.writeError(conn, "search", "missing query", "search command requires a string parameter")
		return
	}

	c := s.client(conn)
	results := s.capList(c.session.Search(apptext.New(query)))
	c.setLast(results)

	attrs := fmt.Sprintf("cmd: search\nquery: %s\nlist-len: %d\n\n", query, len(results))
	s.writeResponse(conn, attrs+formatList(results))
}

func (s *Server) handleQuery(conn net.Conn, cmd *parser.Command) {
	query, ok := queryArg(cmd)
	if !ok {
		s.writeError(conn, "query", "missing query", "query command requires a string parameter")
		return
	}

	c := s.client(conn)
	token, sub := c.session.Deferred(apptext.New(query))
	s.writeResponse(conn, fmt.Sprintf("cmd: query\nquery: %s\ntoken: %d\n\n", query, token))

	c.relays.Add(1)
	go func() {
		defer c.relays.Done()
		s.relay(c, sub)
	}()
}

// relay streams every snapshot of sub to the client as a results frame.
func (s *Server) relay(c *client, sub *engine.Subscription) {
	for {
		results, err := sub.Next(c.ctx)
		if err != nil {
			if !errors.Is(err, engine.ErrDone) {
				s.log().Debug("deferred relay stopped", "token", sub.Token(), "reason", err)
			}
			return
		}

		results = s.capList(results)
		c.setLast(results)
		attrs := fmt.Sprintf("cmd: results\ntoken: %d\nfinal: %s\nlist-len: %d\n\n",
			sub.Token(), boolAttr(sub.Done()), len(results))
		if err := c.write(attrs + formatList(results)); err != nil {
			s.log().Debug("failed to write results", "token", sub.Token(), "error", err)
			return
		}
	}
}

func (s *Server) handleRun(conn net.Conn, cmd *parser.Command) {
	if len(cmd.Args) == 0 || cmd.Args[0].Type != parser.TypeInt {
		s.writeError(conn, "run", "missing id", "run command requires an index parameter")
		return
	}
	idx := cmd.Args[0].Int
	forceTerm := slices.Contains(cmd.Strings(), optTerminal)

	c := s.client(conn)
	app, ok := c.at(idx)
	if !ok {
		s.writeError(conn, "run", "index not found", "Can't run application, requested index not found.")
		return
	}

	pid, err := s.start(app, app.Terminal || forceTerm)
	if err != nil {
		s.log().Error("failed to start application", "app", app.Name.String(), "error", err)
		s.writeError(conn, "run", "execution failed", err.Error())
		return
	}
	s.log().Info("application started", "app", app.Name.String(), "pid", pid)

	if err := c.session.Finish(c.ctx, &app); err != nil {
		s.log().Warn("refresh after launch failed", "error", err)
	}

	attrs := fmt.Sprintf("cmd: run\nidx: %d\nstatus: 0\npid: %d\n\n", idx, pid)
	s.writeResponse(conn, attrs)
}

func (s *Server) handleDismiss(conn net.Conn) {
	c := s.client(conn)
	if err := c.session.Finish(c.ctx, nil); err != nil {
		s.writeError(conn, "dismiss", "refresh failed", err.Error())
		return
	}
	c.setLast(nil)
	s.writeResponse(conn, "cmd: dismiss\nstatus: 0\n\n")
}

// handleReindex re-enumerates the catalog. String arguments name the paths
// that triggered the request; they are logged and counted, the whole
// catalog is rebuilt either way.
func (s *Server) handleReindex(conn net.Conn, cmd *parser.Command) {
	var paths []string
	for _, arg := range cmd.Args {
		if arg.Type != parser.TypeString {
			s.writeError(conn, "reindex", "invalid argument", "reindex accepts only path strings")
			return
		}
		paths = append(paths, arg.Str)
	}
	s.log().Debug("reindex requested", "paths", paths)

	changed, err := s.engine.Refresh(s.baseContext())
	if err != nil {
		s.writeError(conn, "reindex", "reindex failed", err.Error())
		return
	}

	attrs := fmt.Sprintf("cmd: reindex\nstatus: 0\nchanged: %s\nindexed: %d\n\n",
		boolAttr(changed), s.engine.Catalog().Len())
	s.writeResponse(conn, attrs)
}

func (s *Server) handleLearned(conn net.Conn, cmd *parser.Command) {
	query, ok := queryArg(cmd)
	if !ok {
		s.writeError(conn, "learned", "missing query", "learned command requires a string parameter")
		return
	}

	app, found := s.engine.Learned(apptext.New(query))
	if !found {
		s.writeResponse(conn, fmt.Sprintf("cmd: learned\nquery: %s\nfound: f\n\n", query))
		return
	}
	attrs := fmt.Sprintf("cmd: learned\nquery: %s\nfound: t\nname: %s\npath: %s\n\n", query, app.Name, app.Path)
	s.writeResponse(conn, attrs)
}

func (s *Server) handleList(conn net.Conn) {
	catalog := s.engine.Catalog()
	list := s.capList(catalog.All())
	s.client(conn).setLast(list)

	attrs := fmt.Sprintf("cmd: list\ntotal: %d\nlist-len: %d\n\n", catalog.Len(), len(list))
	s.writeResponse(conn, attrs+formatList(list))
}

func (s *Server) start(app apps.Application, inTerminal bool) (int, error) {
	launch := s.launch
	if launch == nil {
		launch = startProcess
	}
	term := s.terminal
	if term == "" {
		term = defaultTerminal
	}
	return launch(app, term, inTerminal)
}

// handleOpen opens the URL of an exactly matching shortcut with xdg-open.
// It does not touch the session.
func (s *Server) handleOpen(conn net.Conn, cmd *parser.Command) {
	name, ok := queryArg(cmd)
	if !ok {
		s.writeError(conn, "open", "missing name", "open command requires a string parameter")
		return
	}

	var url string
	found := false
	if s.shortcut != nil {
		url, found = s.shortcut(name)
	}
	if !found {
		s.writeError(conn, "open", "unknown shortcut", fmt.Sprintf("No shortcut named %q.", name))
		return
	}

	pid, err := s.start(apps.Application{Name: apptext.New(name), Path: url, Exec: "xdg-open " + url}, false)
	if err != nil {
		s.log().Error("failed to open shortcut", "name", name, "url", url, "error", err)
		s.writeError(conn, "open", "execution failed", err.Error())
		return
	}

	attrs := fmt.Sprintf("cmd: open\nname: %s\nurl: %s\nstatus: 0\npid: %d\n\n", name, url, pid)
	s.writeResponse(conn, attrs)
}

// startProcess runs app detached from the connection and reaps it on exit.
func startProcess(app apps.Application, terminal string, inTerminal bool) (int, error) {
	command := app.Exec
	if command == "" {
		command = app.Path
	}

	var execCmd *exec.Cmd
	if inTerminal {
		execCmd = exec.Command(terminal, "-e", command)
	} else {
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return 0, errors.New("empty exec command")
		}
		execCmd = exec.Command(parts[0], parts[1:]...)
	}

	if err := execCmd.Start(); err != nil {
		return 0, err
	}
	go func() { _ = execCmd.Wait() }()
	return execCmd.Process.Pid, nil
}

// writeResponse writes a response with TXT01 header
func (s *Server) writeResponse(conn net.Conn, response string) {
	if err := s.client(conn).write(response); err != nil {
		s.log().Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeError(conn net.Conn, cmd, errType, desc string) {
	s.log().Debug("writing error response", "cmd", cmd, "type", errType, "desc", desc)
	errorMsg := fmt.Sprintf("error-cmd: %s\nerror: %s\ndesc: %s\n\n", cmd, errType, desc)
	s.writeResponse(conn, errorMsg)
}
