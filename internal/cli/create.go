package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"

	"github.com/era-ai/era/pkg/types"
)

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("create", stderr)
	dryRun := fs.Bool("dry-run", false, "Generate once and print the composed program without running or storing it")
	force := fs.Bool("force", false, "Rebuild an agent that already exists")
	iterations := fs.Int("iterations", 0, "Generate-execute attempts (default from config)")
	utilities := fs.String("utilities", "", "Comma-separated utilities to inject instead of detecting them")
	language := fs.String("language", "", "javascript or typescript (default from config)")
	model := fs.String("model", "", "Model to generate with (default from config)")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return ExitUsage
	}

	req := &types.CreateRequest{
		AgentName:   fs.Arg(0),
		Prompt:      strings.Join(fs.Args()[1:], " "),
		Language:    *language,
		Model:       *model,
		MaxAttempts: *iterations,
		Utilities:   splitList(*utilities),
		Force:       *force,
	}

	a, closeApp, err := openApp(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	defer closeApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *dryRun {
		preview, err := a.Orchestrator.Preview(ctx, req)
		if err != nil {
			fmt.Fprintf(stderr, "era: preview failed: %v\n", err)
			return ExitError
		}
		if len(preview.Utilities) > 0 {
			fmt.Fprintf(stderr, "utilities: %s\n", strings.Join(preview.Utilities, ", "))
		}
		fmt.Fprintln(stdout, preview.Program)
		return ExitOK
	}

	subscriber := "cli-" + uuid.NewString()
	events := a.Orchestrator.Events().Subscribe(subscriber)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			printEvent(stderr, e)
		}
	}()

	sess, err := a.Orchestrator.Run(ctx, req)
	a.Orchestrator.Events().Unsubscribe(subscriber)
	<-done

	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}

	fmt.Fprintf(stderr, "session %s: %s after %d attempt(s)\n", sess.ID, sess.Outcome, len(sess.Attempts))
	if sess.Outcome != types.OutcomeSuccess {
		if msg := sess.LastError(); msg != "" {
			fmt.Fprintf(stderr, "last error: %s\n", msg)
		}
		return ExitError
	}
	fmt.Fprintln(stdout, sess.FinalCode)
	return ExitOK
}

func printEvent(w io.Writer, e *types.SessionEvent) {
	switch e.Type {
	case types.EventAttemptGenerated:
		if !e.Succeeded {
			fmt.Fprintf(w, "attempt %d: no code: %s\n", e.AttemptNumber, e.Message)
		}
	case types.EventAttemptExecuted:
		if e.Succeeded {
			fmt.Fprintf(w, "attempt %d: run succeeded\n", e.AttemptNumber)
		} else {
			fmt.Fprintf(w, "attempt %d: run failed: %s\n", e.AttemptNumber, e.Message)
		}
	}
}
