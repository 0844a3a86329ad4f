// cmd/substrate-mcp/main.go
//
// Thin stdio MCP entry point exposing the substrate's operations as
// tools for agent hosts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentmem/substrate/internal/config"
	"github.com/agentmem/substrate/internal/coordination"
	"github.com/agentmem/substrate/internal/embedding"
	"github.com/agentmem/substrate/internal/episodic"
	"github.com/agentmem/substrate/internal/mcp"
	"github.com/agentmem/substrate/internal/objstore"
	"github.com/agentmem/substrate/internal/retrieval"
	"github.com/agentmem/substrate/internal/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Logs go to stderr; stdout is the MCP transport.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		return err
	}

	dim := cfg.ObjectStore.VectorDim
	var embedder retrieval.Embedder
	timeout := time.Duration(cfg.Embedding.TimeoutS) * time.Second
	switch {
	case cfg.Embedding.Provider == "ollama":
		backend := embedding.NewOllamaClient(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension, timeout)
		if dim == 0 {
			dim = backend.Dimension()
		}
		if svc, err := embedding.NewService(backend, cfg.Embedding.Model); err == nil {
			embedder = svc
		}
	case os.Getenv("SUBSTRATE_EMBED_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != "":
		apiKey := os.Getenv("SUBSTRATE_EMBED_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		backend := embedding.NewRemoteClient(baseURL, apiKey, cfg.Embedding.Model, cfg.Embedding.Dimension, timeout)
		if dim == 0 {
			dim = backend.Dimension()
		}
		if svc, err := embedding.NewService(backend, cfg.Embedding.Model); err == nil {
			embedder = svc
		}
	}
	if dim == 0 {
		dim = 1536
	}

	store, err := objstore.Open(cfg.ObjectStore.SQLite, dim)
	if err != nil {
		return err
	}
	defer store.Close()

	planner := retrieval.New(store, embedder, retrieval.Config{
		Weights: retrieval.Weights{
			Text:   cfg.Retrieval.WeightText,
			Vector: cfg.Retrieval.WeightVector,
			Graph:  cfg.Retrieval.WeightGraph,
		},
		LaneTimeout:  time.Duration(cfg.Retrieval.LaneTimeoutS) * time.Second,
		DefaultLimit: cfg.Retrieval.DefaultLimit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
	}, logger)

	orchestrator := sync.New(store, embedder, sync.Config{}, logger)
	episodicCache := episodic.New(store, embedder, episodic.Config{
		TokenBudget: cfg.Cache.BlockTokenBudget,
		Window:      cfg.Cache.WindowBlocks,
	}, logger)

	handler := mcp.NewSubstrateHandler(
		planner,
		orchestrator,
		episodicCache,
		coordination.NewLeases(store, logger),
		coordination.NewRuns(store),
		coordination.NewArtifacts(store, embedder),
		logger,
	)

	server := mcp.NewServer("substrate", "0.1.0", handler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, os.Stdin, os.Stdout)
}

func configPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".substrate-config.yaml"
	}
	return filepath.Join(homeDir, ".config", "substrate", "config.yaml")
}
