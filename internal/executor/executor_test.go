package executor

import (
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/era-ai/era/internal/crypto"
	"github.com/era-ai/era/pkg/types"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewAdapterRegistersEnabled(t *testing.T) {
	cfg := types.DefaultConfig().Executors
	cfg.Sandbox.Enabled = true
	cfg.Sandbox.URL = "http://sandbox.invalid"

	a, err := NewAdapter(&cfg, nil, discard())
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Executors(); !reflect.DeepEqual(got, []string{"sandbox", "local", "embedded"}) {
		t.Errorf("Executors() = %v", got)
	}
}

func TestNewAdapterNeedsOneExecutor(t *testing.T) {
	cfg := types.ExecutorsConfig{Default: "local"}
	if _, err := NewAdapter(&cfg, nil, discard()); err == nil {
		t.Error("expected an error with every executor disabled")
	}
}

func TestResolveEnv(t *testing.T) {
	km := crypto.NewKeyManager(filepath.Join(t.TempDir(), "era.key"))
	if err := km.Initialize(); err != nil {
		t.Fatal(err)
	}
	ps := crypto.NewPayloadService(km)
	sealed, err := ps.SealSecrets(&types.ExecutionSecrets{Env: map[string]string{"TOKEN": "secret", "REGION": "eu"}})
	if err != nil {
		t.Fatal(err)
	}

	cfg := &types.ExecutorsConfig{
		Env:          map[string]string{"REGION": "us", "MODE": "test"},
		EnvEncrypted: sealed,
	}
	env, err := ResolveEnv(cfg, ps)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"REGION": "eu", "MODE": "test", "TOKEN": "secret"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("env = %v, want %v", env, want)
	}

	if _, err := ResolveEnv(cfg, nil); err == nil {
		t.Error("expected an error without an identity")
	}
}
