package registry

import (
	"regexp"
	"sort"
	"strings"
)

// Marker comments let readers of a composed program see where each part
// came from.
const (
	dependencyMarker = "// era:dependencies "
	utilityMarker    = "// era:utility "
)

// Inject returns one program made of a dependency-install preamble, the
// source of each resolved utility, then code verbatim. Utilities a resolved
// entry requires are placed ahead of it; otherwise the requested order is
// kept. Unknown names are skipped. When nothing resolves, code is returned
// as is.
//
// Composition is textual: utilities share the program's top-level scope and
// name clashes with the generated code are not detected.
func (s *Snapshot) Inject(code string, names []string) string {
	type resolved struct {
		name   string
		source string
	}

	var parts []resolved
	depSet := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		entry, ok := s.Get(name)
		if !ok {
			return
		}
		visited[name] = true
		for _, req := range entry.Requires {
			visit(req)
		}
		parts = append(parts, resolved{name: name, source: entry.SourceCode})
		for _, dep := range entry.Dependencies {
			depSet[dep] = true
		}
	}
	for _, name := range names {
		visit(name)
	}

	if len(parts) == 0 {
		return code
	}

	deps := make([]string, 0, len(depSet))
	for dep := range depSet {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	var b strings.Builder
	if len(deps) > 0 {
		b.WriteString(InstallPreamble(deps))
		b.WriteString("\n")
	}
	for _, p := range parts {
		b.WriteString(utilityMarker)
		b.WriteString(p.name)
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(p.source, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString(code)
	return b.String()
}

// InstallPreamble renders a single npm install step for deps.
func InstallPreamble(deps []string) string {
	list := strings.Join(deps, " ")
	return dependencyMarker + list + "\n" +
		`require("child_process").execSync("npm install --no-save --silent ` + list + `", { stdio: "inherit" });` + "\n"
}

var packageNamePattern = regexp.MustCompile(`^(@[a-z0-9][a-z0-9._~-]*/)?[a-z0-9][a-z0-9._~-]*(@[A-Za-z0-9._^~<>=*+-]+)?$`)

// validPackageName keeps the install command free of shell metacharacters.
func validPackageName(name string) bool {
	return len(name) <= 214 && packageNamePattern.MatchString(name)
}

// Select returns the utilities that code calls without declaring itself.
// A generated agent also matches when one of its annotated functions is
// called. Order follows List(true).
func (s *Snapshot) Select(code string) []string {
	var names []string
	for _, e := range s.List(true) {
		candidates := []string{e.Name}
		for _, sig := range e.Signatures {
			candidates = append(candidates, sig.Name)
		}
		for _, c := range candidates {
			if calls(code, c) && !declares(code, c) {
				names = append(names, e.Name)
				break
			}
		}
	}
	return names
}

func calls(code, name string) bool {
	if !isIdentifier(name) {
		return false
	}
	re := regexp.MustCompile(`(^|[^\w.$])` + regexp.QuoteMeta(name) + `\s*\(`)
	return re.MatchString(code)
}

func declares(code, name string) bool {
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(function\s*\*?\s+` + q + `\b)|((const|let|var|class)\s+` + q + `\b)`)
	return re.MatchString(code)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

func isIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
