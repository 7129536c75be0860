package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/era-ai/era/internal/generator"
	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/mcp"
	"github.com/era-ai/era/internal/orchestrator"
	"github.com/era-ai/era/internal/registry"
	"github.com/era-ai/era/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedGenerator struct{ code string }

func (g fixedGenerator) Generate(_ context.Context, prompt string, _ generator.Options) (*generator.Result, error) {
	if g.code == "" {
		return nil, &generator.ExtractionError{Attempts: 3, LastResponse: "no"}
	}
	return &generator.Result{Code: g.code, RawResponse: "<code>" + g.code + "</code>", AttemptsUsed: 1, Prompt: prompt}, nil
}

type printingRunner struct{ stdout string }

func (r printingRunner) Execute(context.Context, string, string, map[string]string) types.ExecutionResult {
	return types.ExecutionResult{Succeeded: true, Stdout: r.stdout}
}

type testAPI struct {
	router *Router
	store  *history.Store
	orch   *orchestrator.Orchestrator
}

func newTestAPI(t *testing.T, code, stdout string) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := history.Open(filepath.Join(t.TempDir(), "era.db"), logger)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New([]registry.BuiltinLoader{{
		Name: "fetchJSON",
		Load: func() (*types.UtilityEntry, error) {
			return &types.UtilityEntry{Name: "fetchJSON", Kind: types.UtilityBuiltin, SourceCode: "async function fetchJSON() {}", Documentation: "### fetchJSON"}, nil
		},
	}}, store, logger)
	orch := orchestrator.New(fixedGenerator{code: code}, printingRunner{stdout: stdout}, store, reg, orchestrator.Options{}, logger)

	r := NewRouter(orch, store, reg, mcp.NewServer(orch, store, reg, logger), logger)
	t.Cleanup(r.Close)
	return &testAPI{router: r, store: store, orch: orch}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateAgentFlow(t *testing.T) {
	a := newTestAPI(t, "console.log(2+3)", "5\n")

	rec := a.do(t, http.MethodPost, "/api/v1/agents", `{"name":"sum","prompt":"print the sum of 2 and 3"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	sess := decode[types.Session](t, rec)
	if sess.Outcome != types.OutcomeSuccess || sess.FinalCode != "console.log(2+3)" {
		t.Fatalf("session = %+v", sess)
	}

	rec = a.do(t, http.MethodPost, "/api/v1/agents", `{"name":"sum","prompt":"again"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID+"/code", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "console.log(2+3)" {
		t.Errorf("code = %d %q", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, "/api/v1/agents/sum", "")
	body := decode[map[string]json.RawMessage](t, rec)
	if rec.Code != http.StatusOK || body["agent"] == nil || body["session"] == nil {
		t.Errorf("get agent = %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, "/api/v1/agents", "")
	agents := decode[[]types.UtilityEntry](t, rec)
	if len(agents) != 1 || agents[0].Name != "sum" {
		t.Errorf("agents = %+v", agents)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/sessions?agent=sum&outcome=success", "")
	if list := decode[[]types.Session](t, rec); len(list) != 1 {
		t.Errorf("sessions = %d", len(list))
	}
}

func TestCreateIgnoresClientSessionID(t *testing.T) {
	a := newTestAPI(t, "console.log(2+3)", "5\n")

	rec := a.do(t, http.MethodPost, "/api/v1/agents", `{"name":"sum","prompt":"print the sum of 2 and 3"}`)
	first := decode[types.Session](t, rec)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/api/v1/agents", `{"id":"`+first.ID+`","name":"other","prompt":"print five"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("second create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	second := decode[types.Session](t, rec)
	if second.ID == first.ID {
		t.Fatalf("request chose the session id %s", second.ID)
	}

	stored, err := a.store.Get(first.ID)
	if err != nil {
		t.Fatalf("Get(%s): %v", first.ID, err)
	}
	if stored.AgentName != "sum" || stored.Outcome != types.OutcomeSuccess || len(stored.Attempts) != 1 {
		t.Errorf("first session was overwritten: %+v", stored)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	a := newTestAPI(t, "console.log(1)", "1\n")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing prompt", `{"name":"x"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"invalid name", `{"name":"no spaces","prompt":"p"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := a.do(t, http.MethodPost, "/api/v1/agents", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateAgentAsync(t *testing.T) {
	a := newTestAPI(t, "console.log(1)", "1\n")

	rec := a.do(t, http.MethodPost, "/api/v1/agents?async=true", `{"name":"bg","prompt":"print 1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	id := decode[map[string]string](t, rec)["session_id"]
	a.orch.Wait()

	rec = a.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	if rec.Code != http.StatusOK || decode[types.Session](t, rec).Outcome != types.OutcomeSuccess {
		t.Errorf("session = %d %s", rec.Code, rec.Body.String())
	}
}

func TestFailedSessionIsNotCreated(t *testing.T) {
	a := newTestAPI(t, "console.log()", "")

	rec := a.do(t, http.MethodPost, "/api/v1/agents", `{"name":"silent","prompt":"print nothing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s := decode[types.Session](t, rec); s.Outcome != types.OutcomeExhaustedRetries || len(s.Attempts) != 3 {
		t.Errorf("session = %+v", s)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/agents/silent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get agent status = %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	a := newTestAPI(t, "console.log(await fetchJSON('u'))", "")

	rec := a.do(t, http.MethodPost, "/api/v1/preview", `{"name":"peek","prompt":"fetch"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	p := decode[types.Preview](t, rec)
	if len(p.Utilities) != 1 || !strings.Contains(p.Program, "async function fetchJSON") {
		t.Errorf("preview = %+v", p)
	}

	a = newTestAPI(t, "", "")
	if rec := a.do(t, http.MethodPost, "/api/v1/preview", `{"name":"peek","prompt":"fetch"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("extraction failure status = %d", rec.Code)
	}
}

func TestUtilities(t *testing.T) {
	a := newTestAPI(t, "console.log(1)", "1\n")

	rec := a.do(t, http.MethodGet, "/api/v1/utilities/docs?agents=false", "")
	if rec.Body.String() != "### fetchJSON" {
		t.Errorf("docs = %q", rec.Body.String())
	}

	rec = a.do(t, http.MethodPost, "/api/v1/utilities/reload", "")
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["utilities"] != float64(1) {
		t.Errorf("reload = %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, "/api/v1/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", rec.Code)
	}
	rec = a.do(t, http.MethodGet, "/api/v1/sessions?limit=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	a := newTestAPI(t, "console.log(1)", "1\n")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	a.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestWebSocketSessionEvents(t *testing.T) {
	a := newTestAPI(t, "console.log(1)", "1\n")
	srv := httptest.NewServer(a.router.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg types.WebSocketMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "initial_utilities" {
		t.Fatalf("first message = %+v, %v", msg, err)
	}

	resp, err := http.Post(srv.URL+"/api/v1/agents", "application/json", strings.NewReader(`{"name":"one","prompt":"print 1"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	for {
		var msg struct {
			Type    string             `json:"type"`
			Payload types.SessionEvent `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "session_event" && msg.Payload.Type == types.EventSessionCompleted {
			if !msg.Payload.Succeeded || msg.Payload.AgentName != "one" {
				t.Errorf("completed event = %+v", msg.Payload)
			}
			return
		}
	}
}

func TestMCPRoute(t *testing.T) {
	a := newTestAPI(t, "console.log(1)", "1\n")

	rec := a.do(t, http.MethodPost, "/api/v1/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "era_create_agent") {
		t.Errorf("mcp = %d %s", rec.Code, rec.Body.String())
	}
}
