package orchestrator

import (
	"fmt"
	"strings"

	"github.com/era-ai/era/pkg/types"
)

func initialPrompt(req *types.CreateRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	fmt.Fprintf(&b, "\n\nThe program will be saved as the agent %q. ", req.AgentName)
	b.WriteString("Print the final result to stdout when the task is done.")
	if len(req.Utilities) > 0 {
		fmt.Fprintf(&b, "\nUse these utilities: %s.", strings.Join(req.Utilities, ", "))
	}
	return b.String()
}

// reframings are tried in turn after a reply without usable code.
var reframings = []string{
	"Respond with nothing but the complete program wrapped in <code></code> tags. Do not explain it and do not ask questions.",
	"Output exactly one <code></code> block that contains a runnable program for the task below. No prose before or after it.",
}

func reframePrompt(req *types.CreateRequest, failed int) string {
	r := reframings[(failed-1)%len(reframings)]
	return r + "\n\nTask:\n" + initialPrompt(req)
}

func feedbackPrompt(req *types.CreateRequest, code, failure string) string {
	var b strings.Builder
	b.WriteString(initialPrompt(req))
	b.WriteString("\n\nA previous attempt produced this program:\n<code>\n")
	b.WriteString(code)
	b.WriteString("\n</code>\nIt failed: ")
	b.WriteString(failure)
	b.WriteString("\nFix the problem and reply with the complete corrected program.")
	return b.String()
}
