package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax marks a line that is neither a command nor a value. The
// connection stays usable after it.
var ErrSyntax = errors.New("parse error")

// ValueType represents the type of a value on the stack
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeBool
)

// Value represents a value on the stack
type Value struct {
	Type ValueType
	Str  string
	Int  int64
	Bool bool
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []Value
}

// Strings returns the string arguments in order.
func (c *Command) Strings() []string {
	var out []string
	for _, a := range c.Args {
		if a.Type == TypeString {
			out = append(out, a.Str)
		}
	}
	return out
}

// Known commands. Arguments are pushed before the command word.
const (
	CmdSearch  = "search"  // "query search: rank and return results
	CmdQuery   = "query"   // "query query: deferred search, results streamed
	CmdRun     = "run"     // n run: launch the n-th result of the last list
	CmdDismiss = "dismiss" // end the session without launching
	CmdReindex = "reindex" // re-enumerate applications
	CmdLearned = "learned" // "query learned: show the learned application
	CmdList    = "list"    // list the catalog
	CmdOpen    = "open"    // "name open: open a URL shortcut
)

var commands = []string{CmdSearch, CmdQuery, CmdRun, CmdDismiss, CmdReindex, CmdLearned, CmdList, CmdOpen}

// Parser parses Forth-style commands
type Parser struct {
	reader  *bufio.Reader
	header  string
	version string
}

// NewParser creates a new parser
func NewParser(reader io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(reader),
	}

	// Read header
	headerBytes := make([]byte, 5)
	if n, err := io.ReadFull(p.reader, headerBytes); err != nil || n != 5 {
		return nil, fmt.Errorf("invalid header")
	}

	p.header = string(headerBytes[:3])
	p.version = string(headerBytes[3:5])

	if p.header != "TXT" {
		return nil, fmt.Errorf("unsupported format: %s", p.header)
	}

	return p, nil
}

// Version returns the protocol version sent in the header.
func (p *Parser) Version() string { return p.version }

// ParseCommand parses the next command from input
func (p *Parser) ParseCommand() (*Command, error) {
	stack := make([]Value, 0)

	for {
		line, err := p.reader.ReadString('\n')
		if err == io.EOF && strings.TrimSpace(line) == "" {
			return nil, io.EOF
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		line = strings.TrimSpace(line)

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if cmd := parseCommand(line); cmd != "" {
			return &Command{
				Name: cmd,
				Args: stack,
			}, nil
		}

		// Otherwise, parse as value and push to stack
		value, perr := parseValue(line)
		if perr != nil {
			return nil, fmt.Errorf("%w: %w", ErrSyntax, perr)
		}
		stack = append(stack, value)

		if err == io.EOF {
			return nil, io.EOF
		}
	}
}

func parseCommand(line string) string {
	for _, cmd := range commands {
		if line == cmd {
			return cmd
		}
	}
	return ""
}

func parseValue(line string) (Value, error) {
	// String value (prefixed with ")
	// Supports option strings like "opt: terminal for the run command
	if after, ok := strings.CutPrefix(line, `"`); ok {
		return Value{Type: TypeString, Str: after}, nil
	}

	// Boolean literals (t/f)
	switch line {
	case "t":
		return Value{Type: TypeBool, Bool: true}, nil
	case "f":
		return Value{Type: TypeBool, Bool: false}, nil
	}

	if intVal, err := strconv.ParseInt(line, 10, 64); err == nil {
		return Value{Type: TypeInt, Int: intVal}, nil
	}

	return Value{}, fmt.Errorf("cannot parse value: %s", line)
}

// ReadAllCommands reads all commands from the parser
func (p *Parser) ReadAllCommands() ([]*Command, error) {
	var commands []*Command

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}
