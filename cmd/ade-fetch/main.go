package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/0xADE/ade-fetchd/client/fetch"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ade-fetch",
		Usage: "Query the ade-fetchd application launcher daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Path to the daemon socket (default /tmp/ade-<uid>/fetchd)",
				EnvVars: []string{"ADE_FETCHD_SOCK"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Rank applications matching a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
			},
			{
				Name:      "query",
				Usage:     "Run a deferred search and print every result frame",
				ArgsUsage: "<query>",
				Action:    queryCommand,
			},
			{
				Name:      "run",
				Usage:     "Search, then launch the n-th result",
				ArgsUsage: "<query> <n>",
				Action:    runCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "terminal",
						Aliases: []string{"t"},
						Usage:   "Run inside the terminal emulator",
					},
				},
			},
			{
				Name:      "learned",
				Usage:     "Show the application learned for a query",
				ArgsUsage: "<query>",
				Action:    learnedCommand,
			},
			{
				Name:      "reindex",
				Usage:     "Re-enumerate applications",
				ArgsUsage: "[path...]",
				Action:    reindexCommand,
			},
			{
				Name:      "open",
				Usage:     "Open a URL shortcut",
				ArgsUsage: "<name>",
				Action:    openCommand,
			},
			{
				Name:   "list",
				Usage:  "List the catalog",
				Action: listCommand,
			},
			{
				Name:   "interactive",
				Usage:  "Send raw commands read from stdin",
				Action: interactiveCommand,
			},
		},
	}
}

func connect(c *cli.Context) (*fetch.Client, error) {
	if socket := c.String("socket"); socket != "" {
		return fetch.Dial(socket)
	}
	return fetch.NewClient()
}

func queryArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("%s requires a query", c.Command.Name)
	}
	return strings.Join(c.Args().Slice(), " "), nil
}

func printApps(w io.Writer, list []fetch.Application) {
	for _, a := range list {
		fmt.Fprintf(w, "%d %s\n", a.Index, a.Name)
	}
}

func searchCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	list, err := client.Search(query)
	if err != nil {
		return err
	}
	printApps(c.App.Writer, list)
	return client.Dismiss()
}

func queryCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	token, err := client.Query(query)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "token: %d\n", token)
	for {
		res, err := client.Results()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "results: %d final: %t\n", len(res.Apps), res.Final)
		printApps(c.App.Writer, res.Apps)
		if res.Final {
			return client.Dismiss()
		}
	}
}

func runCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("run requires a query and an index")
	}
	args := c.Args().Slice()
	index, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[len(args)-1], err)
	}
	query := strings.Join(args[:len(args)-1], " ")

	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Search(query); err != nil {
		return err
	}
	var pid int
	if c.Bool("terminal") {
		pid, err = client.RunInTerminal(index)
	} else {
		pid, err = client.Run(index)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "pid: %d\n", pid)
	return nil
}

func learnedCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	name, path, found, err := client.Learned(query)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(c.App.Writer, "nothing learned for %q\n", query)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\n", name, path)
	return nil
}

func reindexCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	n, changed, err := client.Reindex(c.Args().Slice()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "indexed: %d changed: %t\n", n, changed)
	return nil
}

func listCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	list, err := client.List()
	if err != nil {
		return err
	}
	printApps(c.App.Writer, list)
	return nil
}

func openCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("open requires a shortcut name")
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	pid, err := client.Open(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "pid: %d\n", pid)
	return nil
}

func printFrame(w io.Writer, f *fetch.Frame) {
	keys := make([]string, 0, len(f.Attrs))
	for k := range f.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, f.Attrs[k])
	}
	for _, line := range f.Lines {
		fmt.Fprintln(w, line)
	}
}

func interactiveCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	out := c.App.Writer
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Fprintln(out, "Interactive mode. Type commands or 'exit' to quit.")
	fmt.Fprint(out, "> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "exit" || line == "quit" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}

		// Arguments come first on the wire, the command word last.
		if err := client.SendCommand(parts[0], parts[1:]); err != nil {
			return err
		}

		for {
			f, err := client.ReadFrame()
			if err != nil {
				return err
			}
			printFrame(out, f)
			if f.Cmd() != "query" && !(f.Cmd() == "results" && f.Attrs["final"] == "f") {
				break
			}
		}
		fmt.Fprint(out, "> ")
	}

	return scanner.Err()
}
