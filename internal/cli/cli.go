// Package cli implements the era command line.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/era-ai/era/internal/app"
	"github.com/era-ai/era/internal/config"
	"github.com/era-ai/era/internal/logs"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Command is one era subcommand.
type Command struct {
	Name    string
	Summary string
	Usage   string
	Run     func(args []string, stdout, stderr io.Writer) int
}

var commands []*Command

func init() {
	commands = []*Command{
		{Name: "create", Summary: "Generate, run and store an agent", Usage: "era create [options] <name> <prompt>", Run: runCreate},
		{Name: "list", Summary: "List creation sessions", Usage: "era list [options]", Run: runList},
		{Name: "show", Summary: "Show a session and its attempts", Usage: "era show [options] <session-id>", Run: runShow},
		{Name: "utilities", Summary: "List utilities or print their documentation", Usage: "era utilities [options]", Run: runUtilities},
		{Name: "encrypt", Summary: "Encrypt a value for the config file", Usage: "era encrypt [options] <value>", Run: runEncrypt},
	}
}

// Run executes the command named by args[0] and returns the exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitUsage
	}
	switch args[0] {
	case "-h", "--help", "help":
		printUsage(stdout)
		return ExitOK
	}

	for _, cmd := range commands {
		if cmd.Name == args[0] {
			return cmd.Run(args[1:], stdout, stderr)
		}
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
	printUsage(stderr)
	return ExitUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  era <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintln(w, "\nUse \"era <command> -h\" for more information.")
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	for _, cmd := range commands {
		if cmd.Name == name {
			fs.Usage = func() {
				fmt.Fprintf(stderr, "Usage: %s\n\n%s.\n\nOptions:\n", cmd.Usage, cmd.Summary)
				fs.PrintDefaults()
			}
		}
	}
	return fs, configPath
}

// parse returns ExitOK for -h, ExitUsage for bad flags, and -1 to continue.
func parse(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitOK
		}
		return ExitUsage
	}
	return -1
}

// openApp loads the config and wires every component. Logs go to stderr.
func openApp(configPath string, stderr io.Writer) (*app.App, func(), error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := logs.New(cfg.Logging, stderr)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		closer.Close()
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
