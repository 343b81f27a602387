package fetch

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Application is one line of a result list. Index is what Run takes.
type Application struct {
	Index int
	Name  string
}

// Frame is one server response: its attributes and list lines.
type Frame struct {
	Attrs map[string]string
	Lines []string
}

// Cmd returns the command the frame answers.
func (f *Frame) Cmd() string { return f.Attrs["cmd"] }

// Err returns the server error carried by the frame, if any.
func (f *Frame) Err() error {
	cmd, ok := f.Attrs["error-cmd"]
	if !ok {
		return nil
	}
	return &ServerError{Cmd: cmd, Type: f.Attrs["error"], Desc: f.Attrs["desc"]}
}

// Apps parses the list lines.
func (f *Frame) Apps() []Application {
	var apps []Application
	for _, line := range f.Lines {
		idx, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		apps = append(apps, Application{Index: i, Name: name})
	}
	return apps
}

// ServerError is an error response.
type ServerError struct {
	Cmd  string
	Type string
	Desc string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s: %s (%s)", e.Cmd, e.Type, e.Desc)
}

// Results is one frame of a deferred search.
type Results struct {
	Token uint64
	Final bool
	Apps  []Application
}

// Client handles connection to ade-fetchd server
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	mu      sync.Mutex
	socket  string
	pending []*Frame // results frames read while waiting for a reply
}

const protoVer = "TXT01" // cmdlist protocol, text format, v01

// NewClient connects to the socket named by ADE_FETCHD_SOCK or the per-user
// default.
func NewClient() (*Client, error) {
	socketPath, err := getSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}
	return Dial(socketPath)
}

// Dial connects to the server listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}

	c, err := newClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.socket = socketPath
	return c, nil
}

func newClient(conn net.Conn) (*Client, error) {
	// Send header
	if _, err := conn.Write([]byte(protoVer)); err != nil {
		return nil, fmt.Errorf("failed to send header: %w", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// FormatArgument formats an argument according to its type
func FormatArgument(arg string) string {
	arg = strings.TrimSpace(arg)

	// If starts with ", it's a string (keep prefix)
	if strings.HasPrefix(arg, `"`) {
		return arg
	}

	// Check for boolean literals
	if arg == "t" || arg == "f" {
		return arg
	}

	// Check if it's numeric (all digits)
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return arg
	}

	// Default: treat as string (add prefix)
	return `"` + arg
}

// SendCommand sends a command to the server
func (c *Client) SendCommand(cmdName string, args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(cmdName, args...)
}

func (c *Client) send(cmdName string, lines ...string) error {
	var req strings.Builder
	for _, arg := range lines {
		req.WriteString(FormatArgument(arg))
		req.WriteByte('\n')
	}
	req.WriteString(cmdName)
	req.WriteByte('\n')

	if _, err := io.WriteString(c.conn, req.String()); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// ReadFrame reads the next response from the server.
func (c *Client) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f, nil
	}
	return c.readFrame()
}

func (c *Client) readFrame() (*Frame, error) {
	// Read header
	header := make([]byte, 5)
	if _, err := io.ReadFull(c.reader, header); err != nil {
		return nil, fmt.Errorf("failed to read response header: %w", err)
	}
	if string(header) != protoVer {
		return nil, fmt.Errorf("unexpected response header %q", header)
	}

	f := &Frame{Attrs: make(map[string]string)}
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if ok {
			f.Attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	n, err := strconv.Atoi(f.Attrs["list-len"])
	if err != nil {
		return f, nil
	}
	for range n {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		f.Lines = append(f.Lines, strings.TrimSuffix(line, "\n"))
	}
	return f, nil
}

// call sends a command and waits for its reply. Results frames of earlier
// deferred searches arriving meanwhile are kept for Results.
func (c *Client) call(cmdName string, lines ...string) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(cmdName, lines...); err != nil {
		return nil, err
	}
	for {
		f, err := c.readFrame()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if f.Cmd() == "results" {
			c.pending = append(c.pending, f)
			continue
		}
		if err := f.Err(); err != nil {
			return nil, err
		}
		return f, nil
	}
}

func quote(s string) string { return `"` + s }

// Search ranks query and returns the listed applications.
func (c *Client) Search(query string) ([]Application, error) {
	f, err := c.call("search", quote(query))
	if err != nil {
		return nil, err
	}
	return f.Apps(), nil
}

// Query starts a deferred search and returns its token. The result lists
// arrive through Results.
func (c *Client) Query(query string) (uint64, error) {
	f, err := c.call("query", quote(query))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(f.Attrs["token"], 10, 64)
}

// Results blocks for the next results frame.
func (c *Client) Results() (*Results, error) {
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return nil, err
		}
		if err := f.Err(); err != nil {
			return nil, err
		}
		if f.Cmd() != "results" {
			continue
		}
		token, err := strconv.ParseUint(f.Attrs["token"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad results token: %w", err)
		}
		return &Results{Token: token, Final: f.Attrs["final"] == "t", Apps: f.Apps()}, nil
	}
}

// Run launches the application at index of the last list and returns its
// process id.
func (c *Client) Run(index int) (int, error) {
	return c.run(strconv.Itoa(index))
}

// RunInTerminal launches the application at index inside the terminal.
func (c *Client) RunInTerminal(index int) (int, error) {
	return c.run(strconv.Itoa(index), `"opt: terminal`)
}

func (c *Client) run(args ...string) (int, error) {
	f, err := c.call("run", args...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(f.Attrs["pid"])
}

// Dismiss ends the session without launching anything.
func (c *Client) Dismiss() error {
	_, err := c.call("dismiss")
	return err
}

// Reindex asks the server to re-enumerate applications and returns the
// catalog size and whether it changed.
func (c *Client) Reindex(paths ...string) (int, bool, error) {
	args := make([]string, len(paths))
	for i, p := range paths {
		args[i] = quote(p)
	}
	f, err := c.call("reindex", args...)
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(f.Attrs["indexed"])
	if err != nil {
		return 0, false, fmt.Errorf("bad indexed count: %w", err)
	}
	return n, f.Attrs["changed"] == "t", nil
}

// Learned returns the application learned for query, if any.
func (c *Client) Learned(query string) (name, path string, found bool, err error) {
	f, err := c.call("learned", quote(query))
	if err != nil {
		return "", "", false, err
	}
	return f.Attrs["name"], f.Attrs["path"], f.Attrs["found"] == "t", nil
}

// List returns the catalog as the server lists it.
func (c *Client) List() ([]Application, error) {
	f, err := c.call("list")
	if err != nil {
		return nil, err
	}
	return f.Apps(), nil
}

// Open opens the URL of a shortcut and returns the opener's process id.
func (c *Client) Open(name string) (int, error) {
	f, err := c.call("open", quote(name))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(f.Attrs["pid"])
}
