package registry

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/era-ai/era/internal/execution"
	"github.com/era-ai/era/internal/executor/embedded"
	"github.com/era-ai/era/pkg/types"
)

// agentSession is a successful session whose winning attempt injected uses.
func agentSession(id, name, code string, uses ...string) *types.Session {
	s := successSession(id, name, "prompt for "+name, code)
	s.Attempts = []types.GenerationAttempt{{
		AttemptNumber:       1,
		ExtractionSucceeded: true,
		ExtractedCode:       code,
		Utilities:           uses,
		ExecutionResult:     &types.ExecutionResult{Succeeded: true},
	}}
	return s
}

func nestedRegistry(t *testing.T) *Registry {
	t.Helper()
	sessions := &staticSessions{sessions: []*types.Session{
		agentSession("s1", "helperTwice", "// Doubles a string.\nfunction helperTwice(s) { plain(); return s + s }", "plain"),
		agentSession("s2", "shout", "// Greets twice.\nfunction greet(n) { return helperTwice(n) }", "helperTwice"),
	}}
	return New([]BuiltinLoader{entryLoader("plain")}, sessions, discardLogger())
}

func injectRegistry(t *testing.T) *Registry {
	t.Helper()
	sessions := &staticSessions{sessions: []*types.Session{
		successSession("s1", "weather-agent", "get the weather", strings.Join([]string{
			"// Returns the current temperature for a city.",
			"async function getTemperature(city) {",
			"  return 21;",
			"}",
		}, "\n")),
	}}
	return New([]BuiltinLoader{
		entryLoader("u1", "a"),
		entryLoader("u2", "a", "b"),
		entryLoader("plain"),
	}, sessions, discardLogger())
}

func TestInjectIdentity(t *testing.T) {
	r := injectRegistry(t)
	code := "console.log(2+3)\n"

	if got := r.Inject(code, nil); got != code {
		t.Errorf("Inject(code, nil) = %q", got)
	}
	if got := r.Inject(code, []string{}); got != code {
		t.Errorf("Inject(code, []) = %q", got)
	}
	if got := r.Inject(code, []string{"nonexistent"}); got != code {
		t.Errorf("Inject(code, [nonexistent]) = %q", got)
	}
}

func TestInjectDependencyUnion(t *testing.T) {
	r := injectRegistry(t)

	for _, order := range [][]string{{"u1", "u2"}, {"u2", "u1"}} {
		got := r.Inject("main()", order)
		if n := strings.Count(got, "npm install"); n != 1 {
			t.Fatalf("order %v: %d install steps, want 1:\n%s", order, n, got)
		}
		if !strings.HasPrefix(got, InstallPreamble([]string{"a", "b"})) {
			t.Errorf("order %v: preamble does not list {a, b} once:\n%s", order, got)
		}
	}
}

func TestInjectLayout(t *testing.T) {
	r := injectRegistry(t)
	code := "u2();\nplain();"

	got := r.Inject(code, []string{"plain", "missing", "u2", "plain"})

	preamble := InstallPreamble([]string{"a", "b"})
	want := preamble + "\n" +
		"// era:utility plain\nfunction plain() {}\n\n" +
		"// era:utility u2\nfunction u2() {}\n\n" +
		code
	if got != want {
		t.Errorf("Inject() =\n%s\nwant\n%s", got, want)
	}
}

func TestInjectWithoutDependencies(t *testing.T) {
	r := injectRegistry(t)
	got := r.Inject("plain()", []string{"plain"})
	if strings.Contains(got, "npm install") {
		t.Errorf("preamble emitted for utilities without dependencies:\n%s", got)
	}
	if !strings.HasSuffix(got, "\n\nplain()") {
		t.Errorf("generated code not appended verbatim:\n%s", got)
	}
}

func TestInjectAddsRequiredUtilities(t *testing.T) {
	r := nestedRegistry(t)
	code := `console.log(greet("ab"))`

	selected := r.Select(code)
	if !reflect.DeepEqual(selected, []string{"shout"}) {
		t.Fatalf("Select() = %v, want [shout]", selected)
	}

	got := r.Inject(code, selected)
	plain := strings.Index(got, utilityMarker+"plain\n")
	helper := strings.Index(got, utilityMarker+"helperTwice\n")
	shout := strings.Index(got, utilityMarker+"shout\n")
	if plain < 0 || helper < plain || shout < helper {
		t.Fatalf("required utilities not placed ahead of their user:\n%s", got)
	}
	if strings.Count(got, utilityMarker) != 3 {
		t.Errorf("expected each utility once:\n%s", got)
	}

	ec, err := embedded.NewExecutor().Provision(context.Background(), "javascript")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	defer ec.Teardown(context.Background())
	out, err := ec.Run(context.Background(), &execution.RunRequest{Code: got, Language: "javascript"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 0 || out.Stdout != "abab\n" {
		t.Errorf("out = %+v", out)
	}
}

func TestInjectRequiredDependencyUnion(t *testing.T) {
	sessions := &staticSessions{sessions: []*types.Session{
		agentSession("s1", "scraper", "function scrape() { return u1() }", "u1"),
	}}
	r := New([]BuiltinLoader{entryLoader("u1", "a"), entryLoader("u2", "b")}, sessions, discardLogger())

	got := r.Inject("scrape(); u2()", []string{"scraper", "u2"})
	if !strings.HasPrefix(got, InstallPreamble([]string{"a", "b"})) {
		t.Errorf("preamble does not include the required utility's dependencies:\n%s", got)
	}
}

func TestInjectRequirementCycle(t *testing.T) {
	sessions := &staticSessions{sessions: []*types.Session{
		agentSession("s1", "ping", "function ping() {}", "pong"),
		agentSession("s2", "pong", "function pong() {}", "ping"),
	}}
	r := New(nil, sessions, discardLogger())

	got := r.Inject("ping()", []string{"ping"})
	if strings.Index(got, utilityMarker+"pong\n") > strings.Index(got, utilityMarker+"ping\n") {
		t.Errorf("pong should precede ping:\n%s", got)
	}
	if strings.Count(got, utilityMarker) != 2 {
		t.Errorf("expected each utility once:\n%s", got)
	}
}

func TestInstallPreamble(t *testing.T) {
	got := InstallPreamble([]string{"cheerio", "@scope/pkg"})
	want := "// era:dependencies cheerio @scope/pkg\n" +
		`require("child_process").execSync("npm install --no-save --silent cheerio @scope/pkg", { stdio: "inherit" });` + "\n"
	if got != want {
		t.Errorf("InstallPreamble() = %q, want %q", got, want)
	}
}

func TestSelect(t *testing.T) {
	r := injectRegistry(t)

	tests := []struct {
		name string
		code string
		want []string
	}{
		{
			name: "direct calls in registry order",
			code: "plain();\nconst x = u1(3);",
			want: []string{"u1", "plain"},
		},
		{
			name: "method call is not a utility call",
			code: "client.u1();",
			want: nil,
		},
		{
			name: "declared locally",
			code: "function u2() { return 1 }\nu2();",
			want: nil,
		},
		{
			name: "agent matched through its signature",
			code: "const t = await getTemperature('Oslo');",
			want: []string{"weather-agent"},
		},
		{
			name: "name inside another identifier",
			code: "myu1(); u1x();",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Select(tt.code); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Select() = %v, want %v", got, tt.want)
			}
		})
	}
}
