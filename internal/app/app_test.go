package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/era-ai/era/pkg/types"
)

func testConfig(t *testing.T) *types.Config {
	dir := t.TempDir()
	config := types.DefaultConfig()
	config.History.Path = filepath.Join(dir, "era.db")
	config.Crypto.IdentityPath = filepath.Join(dir, "era.key")
	config.Executors.Default = "embedded"
	config.Executors.Local.Enabled = false
	return config
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if got := a.Executor.Executors(); len(got) != 1 || got[0] != "embedded" {
		t.Errorf("executors = %v", got)
	}
	if a.Models.Gate().Capacity() != 10 {
		t.Errorf("gate capacity = %d", a.Models.Gate().Capacity())
	}
	if len(a.Registry.List(false)) == 0 {
		t.Error("no builtin utilities loaded")
	}

	res := a.Executor.Execute(context.Background(), "console.log(2+3)", "javascript", nil)
	if !res.Succeeded || res.Stdout != "5\n" {
		t.Errorf("embedded run = %+v", res)
	}
}

func TestNewFailsWithoutExecutors(t *testing.T) {
	config := testConfig(t)
	config.Executors.Embedded.Enabled = false

	if _, err := New(config, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected an error with every executor disabled")
	}
}
