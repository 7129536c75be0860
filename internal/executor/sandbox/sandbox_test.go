package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/era-ai/era/internal/execution"
)

type fakeService struct {
	mu      sync.Mutex
	created int
	deleted []string
	lastRun map[string]any
	failRun bool
}

func (s *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/contexts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.created++
		s.mu.Unlock()
		w.Write([]byte(`{"id":"c42"}`))
	})
	mux.HandleFunc("/contexts/c42/run", func(w http.ResponseWriter, r *http.Request) {
		if s.failRun {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("runner crashed"))
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.lastRun = body
		s.mu.Unlock()
		w.Write([]byte(`{"stdout":"5\n","stderr":"","exit_code":0}`))
	})
	mux.HandleFunc("/contexts/c42", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		s.mu.Lock()
		s.deleted = append(s.deleted, "c42")
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func adapter(e *Executor) *execution.Adapter {
	a := execution.NewAdapter(execution.Options{Env: map[string]string{"BASE": "1"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.RegisterExecutor(e)
	return a
}

func TestSandboxLifecycle(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	res := adapter(NewExecutor(srv.URL, "tok", srv.Client())).
		Execute(context.Background(), "console.log(2+3)", "javascript", map[string]string{"X": "y"})

	if !res.Succeeded || res.Stdout != "5\n" || res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("result = %+v", res)
	}
	if svc.created != 1 || len(svc.deleted) != 1 {
		t.Errorf("created %d, deleted %v", svc.created, svc.deleted)
	}
	if svc.lastRun["code"] != "console.log(2+3)" {
		t.Errorf("run body = %v", svc.lastRun)
	}
	env, _ := svc.lastRun["env"].(map[string]any)
	if env["BASE"] != "1" || env["X"] != "y" {
		t.Errorf("env = %v", env)
	}
}

func TestSandboxRunFailureStillTearsDown(t *testing.T) {
	svc := &fakeService{failRun: true}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	res := adapter(NewExecutor(srv.URL, "tok", srv.Client())).Execute(context.Background(), "1", "javascript", nil)
	if res.Succeeded || !strings.Contains(res.ErrorMessage, "HTTP 502") {
		t.Errorf("result = %+v", res)
	}
	if len(svc.deleted) != 1 {
		t.Errorf("context leaked")
	}
}

func TestSandboxProvisionUnauthorized(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	res := adapter(NewExecutor(srv.URL, "wrong", srv.Client())).Execute(context.Background(), "1", "javascript", nil)
	if res.Succeeded || !strings.Contains(res.ErrorMessage, "failed to create context") {
		t.Errorf("result = %+v", res)
	}
}

func TestSandboxUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := adapter(NewExecutor(url, "", nil)).Execute(context.Background(), "1", "javascript", nil)
	if res.Succeeded || res.ErrorMessage == "" {
		t.Errorf("result = %+v", res)
	}
}
