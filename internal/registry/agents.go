package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/era-ai/era/pkg/types"
)

var (
	functionDecl = regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\([^)]*\)`)
	bindingDecl  = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function\s*\*?\s*[\w$]*\s*)?\([^)]*\)(?:\s*=>)?`)

	requireCall = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	importFrom  = regexp.MustCompile(`(?m)^\s*import\s+(?:[^'";]*?\s+from\s+)?['"]([^'"]+)['"]`)
)

var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true,
	"crypto": true, "dgram": true, "dns": true, "events": true, "fs": true,
	"http": true, "http2": true, "https": true, "net": true, "os": true,
	"path": true, "perf_hooks": true, "process": true, "querystring": true,
	"readline": true, "stream": true, "string_decoder": true, "timers": true,
	"tls": true, "tty": true, "url": true, "util": true, "v8": true, "vm": true,
	"worker_threads": true, "zlib": true,
}

// FromSession turns a successful session into a generated-agent utility.
func FromSession(s *types.Session) (*types.UtilityEntry, error) {
	if s.Outcome != types.OutcomeSuccess {
		return nil, fmt.Errorf("session %s did not succeed", s.ID)
	}
	if strings.TrimSpace(s.AgentName) == "" {
		return nil, fmt.Errorf("session %s has no agent name", s.ID)
	}
	if strings.TrimSpace(s.FinalCode) == "" {
		return nil, fmt.Errorf("session %s has no final code", s.ID)
	}

	sigs := ScanSignatures(s.FinalCode)
	return &types.UtilityEntry{
		Name:          s.AgentName,
		Kind:          types.UtilityGeneratedAgent,
		Description:   summarize(s.OriginalPrompt),
		SourceCode:    s.FinalCode,
		Dependencies:  ScanDependencies(s.FinalCode),
		Requires:      requiredUtilities(s),
		Documentation: agentDocumentation(s.AgentName, s.OriginalPrompt, sigs),
		Origin: types.Origin{
			SessionID: s.ID,
			Prompt:    s.OriginalPrompt,
		},
		Signatures: sigs,
	}, nil
}

// requiredUtilities returns the utilities injected into the winning attempt.
func requiredUtilities(s *types.Session) []string {
	for i := len(s.Attempts) - 1; i >= 0; i-- {
		a := s.Attempts[i]
		if a.ExecutionResult == nil || !a.ExecutionResult.Succeeded {
			continue
		}
		var names []string
		for _, name := range a.Utilities {
			if name != s.AgentName {
				names = append(names, name)
			}
		}
		return names
	}
	return nil
}

// ScanSignatures finds declarations directly preceded by a comment block.
// It is a line scanner, not a parser.
func ScanSignatures(code string) []types.Signature {
	var (
		sigs    []types.Signature
		comment []string
		inBlock bool
	)

	for _, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case inBlock:
			end := strings.Contains(line, "*/")
			line = strings.TrimSpace(strings.TrimSuffix(strings.SplitN(line, "*/", 2)[0], "*/"))
			line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
			if line != "" {
				comment = append(comment, line)
			}
			if end {
				inBlock = false
			}
			continue

		case strings.HasPrefix(line, "/*"):
			body := strings.TrimLeft(strings.TrimPrefix(line, "/*"), "*")
			if idx := strings.Index(body, "*/"); idx >= 0 {
				if text := strings.TrimSpace(body[:idx]); text != "" {
					comment = append(comment, text)
				}
			} else {
				if text := strings.TrimSpace(body); text != "" {
					comment = append(comment, text)
				}
				inBlock = true
			}
			continue

		case strings.HasPrefix(line, "//"):
			if text := strings.TrimSpace(strings.TrimPrefix(line, "//")); text != "" {
				comment = append(comment, text)
			}
			continue

		case line == "":
			comment = nil
			continue
		}

		if len(comment) > 0 {
			if sig, ok := matchDeclaration(line); ok {
				sig.Comment = strings.Join(comment, " ")
				sigs = append(sigs, sig)
			}
		}
		comment = nil
	}

	return sigs
}

func matchDeclaration(line string) (types.Signature, bool) {
	for _, re := range []*regexp.Regexp{functionDecl, bindingDecl} {
		if m := re.FindStringSubmatch(line); m != nil {
			return types.Signature{
				Name:        m[1],
				Declaration: strings.TrimSpace(m[0]),
			}, true
		}
	}
	return types.Signature{}, false
}

// ScanDependencies returns the npm packages code imports, sorted.
func ScanDependencies(code string) []string {
	set := make(map[string]bool)
	for _, re := range []*regexp.Regexp{requireCall, importFrom} {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			if pkg := packageRoot(m[1]); pkg != "" {
				set[pkg] = true
			}
		}
	}

	deps := make([]string, 0, len(set))
	for dep := range set {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

func packageRoot(specifier string) string {
	if specifier == "" || strings.HasPrefix(specifier, ".") || strings.HasPrefix(specifier, "/") ||
		strings.HasPrefix(specifier, "node:") || strings.Contains(specifier, ":") {
		return ""
	}

	parts := strings.Split(specifier, "/")
	root := parts[0]
	if strings.HasPrefix(root, "@") {
		if len(parts) < 2 {
			return ""
		}
		root = parts[0] + "/" + parts[1]
	}

	if nodeBuiltins[root] || !validPackageName(root) {
		return ""
	}
	return root
}

func agentDocumentation(name, prompt string, sigs []types.Signature) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s (generated agent)\n", name)

	if len(sigs) == 0 {
		fmt.Fprintf(&b, "Created from the prompt: %q\n", strings.TrimSpace(prompt))
		b.WriteString("No annotated functions were found; inject it to run the agent as part of your program.")
		return b.String()
	}

	fmt.Fprintf(&b, "%s\n", summarize(prompt))
	b.WriteString("Functions:\n")
	for _, sig := range sigs {
		fmt.Fprintf(&b, "- %s\n", sig.Declaration)
		if sig.Comment != "" {
			fmt.Fprintf(&b, "  %s\n", sig.Comment)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarize(prompt string) string {
	line := strings.TrimSpace(prompt)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if len(line) > 160 {
		line = line[:157] + "..."
	}
	return line
}
