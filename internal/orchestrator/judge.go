package orchestrator

import (
	"fmt"
	"strings"

	"github.com/era-ai/era/pkg/types"
)

// errorMarkers are output fragments that mark a run as failed even when the
// process exited cleanly.
var errorMarkers = []string{
	"Error:",
	"Uncaught",
	"Traceback (most recent call last)",
	"UnhandledPromiseRejection",
}

const excerptLimit = 400

// Judge decides whether a run accomplished its task. A run succeeds when it
// completed, exited with status 0, printed something to stdout, and neither
// stream contains an error marker. The input is not modified.
func Judge(r types.ExecutionResult) types.ExecutionResult {
	if !r.Succeeded {
		if r.ErrorMessage == "" {
			r.ErrorMessage = "execution did not complete"
		}
		return r
	}

	r.Succeeded = false
	switch {
	case r.ExitCode != nil && *r.ExitCode != 0:
		r.ErrorMessage = fmt.Sprintf("program exited with code %d", *r.ExitCode)
		if stderr := excerpt(r.Stderr); stderr != "" {
			r.ErrorMessage += ": " + stderr
		}
	case markerLine(r.Stderr) != "":
		r.ErrorMessage = "error reported on stderr: " + markerLine(r.Stderr)
	case markerLine(r.Stdout) != "":
		r.ErrorMessage = "error reported on stdout: " + markerLine(r.Stdout)
	case strings.TrimSpace(r.Stdout) == "":
		r.ErrorMessage = "program printed nothing to stdout"
		if stderr := excerpt(r.Stderr); stderr != "" {
			r.ErrorMessage += "; stderr: " + stderr
		}
	default:
		r.Succeeded = true
		r.ErrorMessage = ""
	}
	return r
}

func markerLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		for _, m := range errorMarkers {
			if strings.Contains(line, m) {
				return excerpt(line)
			}
		}
	}
	return ""
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > excerptLimit {
		s = s[:excerptLimit] + "..."
	}
	return s
}
