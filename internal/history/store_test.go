package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/era-ai/era/pkg/types"
)

type warnCounter struct {
	mu sync.Mutex
	n  int
}

func (h *warnCounter) Enabled(context.Context, slog.Level) bool { return true }
func (h *warnCounter) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelWarn {
		h.mu.Lock()
		h.n++
		h.mu.Unlock()
	}
	return nil
}
func (h *warnCounter) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *warnCounter) WithGroup(string) slog.Handler      { return h }

func openStore(t *testing.T, logger *slog.Logger) *Store {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	st, err := Open(filepath.Join(t.TempDir(), "db", "era.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func session(id, agent string, outcome types.Outcome, offset time.Duration) *types.Session {
	exit := 0
	done := base.Add(offset + time.Second)
	s := &types.Session{
		ID:             id,
		AgentName:      agent,
		OriginalPrompt: "print the sum of 2 and 3",
		Language:       "javascript",
		Model:          "gpt-4o-mini",
		MaxAttempts:    3,
		Outcome:        outcome,
		CreatedAt:      base.Add(offset),
		CompletedAt:    &done,
		Attempts: []types.GenerationAttempt{
			{
				AttemptNumber:       1,
				PromptSent:          "print the sum of 2 and 3",
				RawResponse:         "<code>console.log(2+3)</code>",
				ExtractionSucceeded: true,
				ExtractedCode:       "console.log(2+3)",
				Utilities:           []string{"fetchJSON"},
				ExecutionResult: &types.ExecutionResult{
					Succeeded: outcome == types.OutcomeSuccess,
					Stdout:    "5\n",
					ExitCode:  &exit,
				},
				StartedAt:   base.Add(offset),
				CompletedAt: done,
			},
		},
	}
	if outcome == types.OutcomeSuccess {
		s.FinalCode = "console.log(2+3)"
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := openStore(t, nil)
	want := session("s1", "sum", types.OutcomeSuccess, 0)
	want.Attempts = append(want.Attempts, types.GenerationAttempt{
		AttemptNumber:   2,
		PromptSent:      "again",
		GenerationError: "no code block found after 3 attempts",
		StartedAt:       base,
		CompletedAt:     base,
	})

	if err := st.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := st.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("LoadAll() returned %d sessions", len(all))
	}
	got := all[0]

	if got.AgentName != "sum" || got.OriginalPrompt != want.OriginalPrompt || got.FinalCode != "console.log(2+3)" {
		t.Errorf("session = %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.CompletedAt == nil || !got.CompletedAt.Equal(*want.CompletedAt) {
		t.Errorf("timestamps = %v, %v", got.CreatedAt, got.CompletedAt)
	}
	if len(got.Attempts) != 2 {
		t.Fatalf("attempts = %d", len(got.Attempts))
	}
	first := got.Attempts[0]
	if !first.ExtractionSucceeded || first.ExecutionResult == nil || !first.ExecutionResult.Succeeded ||
		first.ExecutionResult.Stdout != "5\n" || *first.ExecutionResult.ExitCode != 0 {
		t.Errorf("attempt 1 = %+v", first)
	}
	if len(first.Utilities) != 1 || first.Utilities[0] != "fetchJSON" {
		t.Errorf("utilities = %v", first.Utilities)
	}
	if got.Attempts[1].ExecutionResult != nil || got.Attempts[1].GenerationError == "" {
		t.Errorf("attempt 2 = %+v", got.Attempts[1])
	}
	if !got.AnySucceeded() {
		t.Error("AnySucceeded() = false after round trip")
	}
}

func TestSaveReplacesAttempts(t *testing.T) {
	st := openStore(t, nil)
	s := session("s1", "sum", types.OutcomePending, 0)
	s.Attempts = nil
	if err := st.Save(s); err != nil {
		t.Fatal(err)
	}

	done := session("s1", "sum", types.OutcomeSuccess, 0)
	if err := st.Save(done); err != nil {
		t.Fatal(err)
	}

	got, err := st.Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != types.OutcomeSuccess || len(got.Attempts) != 1 {
		t.Errorf("session = %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	st := openStore(t, nil)
	if _, err := st.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() err = %v, want ErrNotFound", err)
	}
	if _, err := st.LatestSuccess("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestSuccess() err = %v, want ErrNotFound", err)
	}
	if _, err := st.Code("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Code() err = %v, want ErrNotFound", err)
	}
}

func TestListFilter(t *testing.T) {
	st := openStore(t, nil)
	for i, s := range []*types.Session{
		session("a1", "alpha", types.OutcomeSuccess, 0),
		session("b1", "beta", types.OutcomeExhaustedRetries, time.Minute),
		session("a2", "alpha", types.OutcomeFatalError, 2*time.Minute),
		session("a3", "alpha", types.OutcomeSuccess, 3*time.Minute),
	} {
		if err := st.Save(s); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter *types.SessionFilter
		want   []string
	}{
		{"all", nil, []string{"a1", "b1", "a2", "a3"}},
		{"by agent", &types.SessionFilter{AgentName: "alpha"}, []string{"a1", "a2", "a3"}},
		{"by outcome", &types.SessionFilter{Outcome: []types.Outcome{types.OutcomeExhaustedRetries, types.OutcomeFatalError}}, []string{"b1", "a2"}},
		{"paged", &types.SessionFilter{Limit: 2, Offset: 1}, []string{"b1", "a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.List(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}

	latest, err := st.LatestSuccess("alpha")
	if err != nil || latest.ID != "a3" {
		t.Errorf("LatestSuccess() = %v, %v", latest, err)
	}
}

func TestListOrdersBySubSecondTime(t *testing.T) {
	st := openStore(t, nil)
	for _, s := range []*types.Session{
		session("half", "alpha", types.OutcomeSuccess, 500*time.Millisecond),
		session("later", "alpha", types.OutcomeSuccess, 510*time.Millisecond),
	} {
		if err := st.Save(s); err != nil {
			t.Fatal(err)
		}
	}

	all, err := st.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "half" || all[1].ID != "later" {
		t.Errorf("LoadAll() order = %v", all)
	}
}

func TestLatestSuccessByCompletion(t *testing.T) {
	st := openStore(t, nil)
	slow := session("slow", "alpha", types.OutcomeSuccess, 0)
	finished := base.Add(time.Hour)
	slow.CompletedAt = &finished
	quick := session("quick", "alpha", types.OutcomeSuccess, time.Minute)

	for _, s := range []*types.Session{slow, quick} {
		if err := st.Save(s); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := st.LatestSuccess("alpha")
	if err != nil || latest.ID != "slow" {
		t.Errorf("LatestSuccess() = %v, %v, want slow", latest, err)
	}
}

func TestCodeArtifact(t *testing.T) {
	st := openStore(t, nil)
	if err := st.Save(session("s1", "sum", types.OutcomeSuccess, 0)); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(session("s2", "fail", types.OutcomeExhaustedRetries, 0)); err != nil {
		t.Fatal(err)
	}

	code, err := st.Code("s1")
	if err != nil || code != "console.log(2+3)" {
		t.Errorf("Code() = %q, %v", code, err)
	}

	artifacts, err := st.Artifacts("s1")
	if err != nil || len(artifacts) != 1 || artifacts[0].Name != "sum.js" || artifacts[0].Size != 16 {
		t.Errorf("Artifacts() = %+v, %v", artifacts, err)
	}

	if _, err := st.Code("s2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("failed session has code: %v", err)
	}
}

func TestLoadAllSkipsCorruptRows(t *testing.T) {
	h := &warnCounter{}
	st := openStore(t, slog.New(h))

	if err := st.Save(session("good", "sum", types.OutcomeSuccess, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.db.Exec(`INSERT INTO session (id, agent_name, prompt, created_at) VALUES ('bad', 'x', 'p', 'yesterday')`); err != nil {
		t.Fatal(err)
	}
	if _, err := st.db.Exec(`INSERT INTO attempt (session_id, number, execution) VALUES ('good', 9, '{not json')`); err != nil {
		t.Fatal(err)
	}

	all, err := st.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != "good" || len(all[0].Attempts) != 1 {
		t.Fatalf("LoadAll() = %+v", all)
	}
	if h.n != 2 {
		t.Errorf("warnings = %d, want 2", h.n)
	}
}

func TestConcurrentSaves(t *testing.T) {
	st := openStore(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := session(fmt.Sprintf("s%02d", i), fmt.Sprintf("agent%d", i%3), types.OutcomeSuccess, time.Duration(i)*time.Second)
			if err := st.Save(s); err != nil {
				t.Errorf("Save: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, err := st.LoadAll()
	if err != nil || len(all) != 20 {
		t.Errorf("LoadAll() = %d sessions, %v", len(all), err)
	}
}
