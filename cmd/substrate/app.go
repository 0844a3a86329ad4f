// cmd/substrate/app.go
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmem/substrate/internal/cache"
	"github.com/agentmem/substrate/internal/config"
	"github.com/agentmem/substrate/internal/coordination"
	"github.com/agentmem/substrate/internal/embedding"
	"github.com/agentmem/substrate/internal/episodic"
	"github.com/agentmem/substrate/internal/objstore"
	"github.com/agentmem/substrate/internal/retrieval"
	"github.com/agentmem/substrate/internal/sync"
)

// app is the wired component stack every subcommand runs against.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *objstore.Store
	embedder     *embedding.Service // nil when no backend is configured
	planner      *retrieval.Planner
	results      *cache.RedisCache // nil when Redis is absent
	orchestrator *sync.Orchestrator
	cache        *episodic.Cache
	leases       *coordination.Leases
	runs         *coordination.Runs
	artifacts    *coordination.Artifacts
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(globalConfigPath())
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dim := cfg.ObjectStore.VectorDim
	embedder := buildEmbedder(cfg, &dim)

	store, err := objstore.Open(cfg.ObjectStore.SQLite, dim)
	if err != nil {
		return nil, err
	}

	planner := retrieval.New(store, embedderOrNil(embedder), retrieval.Config{
		Weights: retrieval.Weights{
			Text:   cfg.Retrieval.WeightText,
			Vector: cfg.Retrieval.WeightVector,
			Graph:  cfg.Retrieval.WeightGraph,
		},
		LaneTimeout:  time.Duration(cfg.Retrieval.LaneTimeoutS) * time.Second,
		DefaultLimit: cfg.Retrieval.DefaultLimit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
	}, logger)

	// Redis is optional; without it queries just run uncached.
	var results *cache.RedisCache
	if cfg.Storage.RedisURL != "" {
		if r, err := cache.NewRedisCache(cfg.Storage.RedisURL); err == nil {
			results = r
		} else {
			logger.Warn("redis unavailable, query results will not be cached", "error", err)
		}
	}

	orchestrator := sync.New(store, embedderOrNil(embedder), sync.Config{}, logger)
	episodicCache := episodic.New(store, embedderOrNil(embedder), episodic.Config{
		TokenBudget: cfg.Cache.BlockTokenBudget,
		Window:      cfg.Cache.WindowBlocks,
	}, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		embedder:     embedder,
		planner:      planner,
		results:      results,
		orchestrator: orchestrator,
		cache:        episodicCache,
		leases:       coordination.NewLeases(store, logger),
		runs:         coordination.NewRuns(store),
		artifacts:    coordination.NewArtifacts(store, embedderOrNil(embedder)),
	}, nil
}

func (a *app) close() {
	if a.results != nil {
		a.results.Close()
	}
	a.store.Close()
}

// buildEmbedder selects the embedding backend from configuration,
// returning nil when no usable backend exists (the index then runs
// text-and-graph only). dim is updated to the backend's dimension when
// the config left it unset.
func buildEmbedder(cfg *config.Config, dim *int) *embedding.Service {
	timeout := time.Duration(cfg.Embedding.TimeoutS) * time.Second
	var backend embedding.Backend

	switch cfg.Embedding.Provider {
	case "ollama":
		backend = embedding.NewOllamaClient(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension, timeout)
	default:
		apiKey := os.Getenv("SUBSTRATE_EMBED_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil
		}
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		backend = embedding.NewRemoteClient(baseURL, apiKey, cfg.Embedding.Model, cfg.Embedding.Dimension, timeout)
	}

	if *dim == 0 {
		*dim = backend.Dimension()
	}
	svc, err := embedding.NewService(backend, cfg.Embedding.Model)
	if err != nil {
		return nil
	}
	return svc
}

// embedderOrNil keeps a typed-nil *Service from sneaking into an
// interface value.
func embedderOrNil(svc *embedding.Service) retrieval.Embedder {
	if svc == nil {
		return nil
	}
	return svc
}

func metricsLogPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".substrate-metrics.jsonl"
	}
	return filepath.Join(homeDir, ".config", "substrate", "metrics.jsonl")
}

func globalConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".substrate-config.yaml"
	}
	return filepath.Join(homeDir, ".config", "substrate", "config.yaml")
}
