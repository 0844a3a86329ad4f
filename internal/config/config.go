// internal/config/config.go
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds global configuration.
type Config struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Storage     StorageConfig     `yaml:"storage"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Cache       CacheConfig       `yaml:"cache"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`  // "voyage" (remote, OpenAI-compatible) | "ollama" (local)
	Model     string `yaml:"model"`     // e.g. "voyage-4-large", "nomic-embed-text"
	BaseURL   string `yaml:"base_url"`  // override for self-hosted/ollama endpoints
	Dimension int    `yaml:"dimension"` // D, fixed at startup; 0 means derive from model table
	TimeoutS  int    `yaml:"timeout_s"` // default 30
}

type StorageConfig struct {
	QdrantURL string `yaml:"qdrant_url"`
	Neo4jURL  string `yaml:"neo4j_url"`
	RedisURL  string `yaml:"redis_url"`
}

// ObjectStoreConfig selects and configures the backend(s) behind the
// unified object store (SPEC_FULL §4.5).
type ObjectStoreConfig struct {
	// Backend is "sqlite" (embedded, default) or "remote" (qdrant for
	// vectors + neo4j for graph, still SQLite for the envelope/lexical
	// lane since neither Qdrant nor Neo4j model the full record set).
	Backend   string `yaml:"backend"`
	SQLite    string `yaml:"sqlite_path"`
	VectorDim int    `yaml:"vector_dim"`
}

// CacheConfig configures the episodic cache (SPEC_FULL §4.7) and the
// separate Redis-backed query-result cache.
type CacheConfig struct {
	BlockTokenBudget int `yaml:"block_token_budget"` // B, default 1800
	WindowBlocks     int `yaml:"window_blocks"`      // W, default 20
	QueryTTLMinutes  int `yaml:"query_ttl_minutes"`  // redis query-cache TTL
}

// RetrievalConfig configures the hybrid retrieval planner (SPEC_FULL §4.6).
type RetrievalConfig struct {
	WeightText   float64 `yaml:"weight_text"`
	WeightVector float64 `yaml:"weight_vector"`
	WeightGraph  float64 `yaml:"weight_graph"`
	RRFK         int     `yaml:"rrf_k"`
	LaneTimeoutS int     `yaml:"lane_timeout_s"`
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"` // error|warn|info|debug
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// RepoConfig holds per-repository configuration.
type RepoConfig struct {
	Name          string            `yaml:"name"`
	DefaultBranch string            `yaml:"default_branch"`
	Modules       map[string]Module `yaml:"modules"`
	Include       []string          `yaml:"include"`
	Exclude       []string          `yaml:"exclude"`
}

type Module struct {
	Description string            `yaml:"description"`
	Submodules  map[string]string `yaml:"submodules"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "voyage",
			Model:    "voyage-4-large",
			TimeoutS: 30,
		},
		Storage: StorageConfig{
			QdrantURL: "http://localhost:6333",
			Neo4jURL:  "bolt://localhost:7687",
			RedisURL:  "redis://localhost:6379",
		},
		ObjectStore: ObjectStoreConfig{
			Backend:   "sqlite",
			SQLite:    ".substrate/objects.db",
			VectorDim: 1536,
		},
		Cache: CacheConfig{
			BlockTokenBudget: 1800,
			WindowBlocks:     20,
			QueryTTLMinutes:  10,
		},
		Retrieval: RetrievalConfig{
			WeightText:   0.40,
			WeightVector: 0.35,
			WeightGraph:  0.25,
			RRFK:         60,
			LaneTimeoutS: 5,
			DefaultLimit: 5,
			MaxLimit:     100,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 50,
			MaxFiles:  3,
		},
	}
}

// LoadConfig loads config from file or returns defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRepoConfig loads .substrate.yaml from repo root.
func LoadRepoConfig(repoPath string) (*RepoConfig, error) {
	path := filepath.Join(repoPath, ".substrate.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Substrate RepoConfig `yaml:"substrate"`
	}

	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}

	return &wrapper.Substrate, nil
}
