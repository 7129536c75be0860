// Package main is the entry point for the ERA daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/era-ai/era/internal/api"
	"github.com/era-ai/era/internal/app"
	"github.com/era-ai/era/internal/config"
	"github.com/era-ai/era/internal/crypto"
	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/logs"
	"github.com/era-ai/era/internal/mcp"
	"github.com/era-ai/era/pkg/types"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	initMode    = flag.Bool("init", false, "Initialize a new ERA project")
	projectPath = flag.String("path", ".", "Project path for initialization")
	showVersion = flag.Bool("version", false, "Show version")
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("erad version %s\n", version)
		os.Exit(0)
	}

	if *initMode {
		if err := initializeProject(*projectPath); err != nil {
			log.Fatalf("Initialization failed: %v", err)
		}
		os.Exit(0)
	}

	cfg, path, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, closer, err := logs.New(cfg.Logging, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()

	if path == "" {
		logger.Info("no config file found, using defaults")
	} else {
		logger.Info("config loaded", "path", path)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *types.Config, logger *slog.Logger) error {
	logger.Info("starting ERA daemon", "version", version)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(a.Orchestrator, a.Store, a.Registry, logger.With("component", "mcp"))
	}
	router := api.NewRouter(a.Orchestrator, a.Store, a.Registry, mcpServer, logger.With("component", "api"))
	defer router.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("ERA ready",
		"api", "http://"+addr+"/api/v1",
		"websocket", "ws://"+addr+"/ws",
		"mcp_enabled", cfg.MCP.Enabled,
		"default_model", a.Models.DefaultModel(),
		"executors", a.Executor.Executors(),
		"history", a.Store.Path(),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("waiting for running sessions")
	return nil
}

func initializeProject(projectPath string) error {
	absPath, err := filepath.Abs(projectPath)
	if err != nil {
		return err
	}

	eraDir := filepath.Join(absPath, ".era")
	if err := os.MkdirAll(eraDir, 0755); err != nil {
		return fmt.Errorf("failed to create .era directory: %w", err)
	}

	cfg := types.DefaultConfig()
	cfg.History.Path = filepath.Join(eraDir, "era.db")
	cfg.Crypto.IdentityPath = filepath.Join(eraDir, "era.key")
	cfg.Executors.Local.WorkDir = filepath.Join(eraDir, "runs")

	cfgPath := filepath.Join(absPath, "era.yaml")
	if err := config.Write(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Created config: %s\n", cfgPath)

	keys := crypto.NewKeyManager(cfg.Crypto.IdentityPath)
	if err := keys.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize crypto: %w", err)
	}
	fmt.Printf("Created identity: %s\n", cfg.Crypto.IdentityPath)
	fmt.Printf("Public key: %s\n", keys.PublicKey())

	store, err := history.Open(cfg.History.Path, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		return err
	}
	store.Close()
	fmt.Printf("Created history: %s\n", cfg.History.Path)

	if err := os.MkdirAll(cfg.Executors.Local.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	fmt.Println("\nERA initialization complete!")
	fmt.Println("Run 'erad' to start the server, or 'era create <name> <prompt>' to build an agent.")
	return nil
}
