package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/era-ai/era/pkg/types"
)

func runList(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("list", stderr)
	agent := fs.String("agent", "", "Only sessions for this agent")
	outcome := fs.String("outcome", "", "Comma-separated outcomes to include")
	limit := fs.Int("limit", 0, "Maximum number of sessions")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	a, closeApp, err := openApp(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	defer closeApp()

	filter := &types.SessionFilter{AgentName: *agent, Limit: *limit}
	for _, o := range splitList(*outcome) {
		filter.Outcome = append(filter.Outcome, types.Outcome(o))
	}
	sessions, err := a.Store.List(filter)
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAGENT\tOUTCOME\tATTEMPTS\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.AgentName, s.Outcome, len(s.Attempts), s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
	return ExitOK
}

func runShow(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("show", stderr)
	codeOnly := fs.Bool("code", false, "Print only the stored final program")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return ExitUsage
	}

	a, closeApp, err := openApp(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	defer closeApp()

	if *codeOnly {
		code, err := a.Store.Code(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "era: %v\n", err)
			return ExitError
		}
		fmt.Fprintln(stdout, code)
		return ExitOK
	}

	sess, err := a.Store.Get(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	fmt.Fprintln(stdout, string(data))
	return ExitOK
}

func runUtilities(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("utilities", stderr)
	docs := fs.Bool("docs", false, "Print the documentation bundle given to the model")
	agents := fs.Bool("agents", true, "Include generated agents")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	a, closeApp, err := openApp(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	defer closeApp()

	if *docs {
		fmt.Fprintln(stdout, a.Registry.DocumentationBundle(*agents))
		return ExitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDESCRIPTION")
	for _, e := range a.Registry.List(*agents) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Kind, e.Description)
	}
	tw.Flush()
	return ExitOK
}
