// Package config loads and validates the engine's configuration, following
// the teacher's env-file-then-env-var loading convention.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/memenex/memengine/internal/enginerr"
)

// VectorAlgorithm selects the vector index implementation.
type VectorAlgorithm string

const (
	VectorHNSW VectorAlgorithm = "hnsw"
	VectorFlat VectorAlgorithm = "flat"
)

// Metric selects the vector index's distance function.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricEuclid Metric = "euclidean"
	MetricDot    Metric = "dot"
)

// Tokenizer selects the full-text index's word-segmentation strategy.
type Tokenizer string

const (
	TokenizerLatin Tokenizer = "latin"
	TokenizerCJK   Tokenizer = "cjk"
	TokenizerAuto  Tokenizer = "auto"
)

// RewriteStrategy selects how the core-memory auto-rewriter shrinks an
// overflowing block.
type RewriteStrategy string

const (
	RewriteSummarize RewriteStrategy = "summarize"
	RewriteCompress  RewriteStrategy = "compress"
	RewriteHybrid    RewriteStrategy = "hybrid"
)

// VectorIndexConfig configures the B component.
type VectorIndexConfig struct {
	Algorithm      VectorAlgorithm `json:"algorithm"`
	M              int             `json:"m"`
	EfConstruction int             `json:"ef_construction"`
	EfSearch       int             `json:"ef_search"`
	Metric         Metric          `json:"metric"`
}

// FullTextConfig configures the C component.
type FullTextConfig struct {
	Tokenizer Tokenizer `json:"tokenizer"`
	StopWords []string  `json:"stop_words"`
	Stemming  bool      `json:"stemming"`
	K1        float64   `json:"k1"`
	B         float64   `json:"b"`
}

// ScopeLimits configures per-scope record caps and decay rates.
type ScopeLimits struct {
	GlobalMax   int `json:"global_max"`
	AgentMax    int `json:"agent_max"`
	UserMax     int `json:"user_max"`
	SessionMax  int `json:"session_max"`
	DecayLambda struct {
		Global  float64 `json:"global"`
		Agent   float64 `json:"agent"`
		User    float64 `json:"user"`
		Session float64 `json:"session"`
	} `json:"decay_lambda"`
	ReinforcementBoost float64 `json:"reinforcement_boost"`
}

// BlockConfig configures the Core-Memory block subsystem.
type BlockConfig struct {
	DefaultCapacityChars int             `json:"default_capacity_chars"`
	RewriteStrategy      RewriteStrategy `json:"rewrite_strategy"`
}

// ConsolidationConfig configures the DBSCAN consolidation pass.
type ConsolidationConfig struct {
	IntervalSecs            int     `json:"interval_secs"`
	MinClusterSize          int     `json:"min_cluster_size"`
	AgeWindowSecs           int     `json:"age_window_secs"`
	ImportanceDecayFactor   float64 `json:"importance_decay_factor"`
}

// DeadlineConfig configures default request and dependency deadlines.
type DeadlineConfig struct {
	DefaultMs  int `json:"default_ms"`
	EmbedderMs int `json:"embedder_ms"`
	RewriterMs int `json:"rewriter_ms"`
}

// Config is the engine's full, validated configuration.
type Config struct {
	EmbeddingDim  int                  `json:"embedding_dim"`
	VectorIndex   VectorIndexConfig    `json:"vector_index"`
	FullText      FullTextConfig       `json:"fulltext"`
	Scopes        ScopeLimits          `json:"scopes"`
	Blocks        BlockConfig          `json:"blocks"`
	Consolidation ConsolidationConfig  `json:"consolidation"`
	Deadlines     DeadlineConfig       `json:"deadlines"`
	DecayInterval time.Duration        `json:"-"`
	LockStripes   int                  `json:"lock_stripes"`
	KVBackend     string               `json:"kv_backend"`
}

// Default returns a Config with every Open-Question default documented in
// SPEC_FULL.md section 9.
func Default() *Config {
	c := &Config{
		EmbeddingDim: 1536,
		VectorIndex: VectorIndexConfig{
			Algorithm:      VectorHNSW,
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
			Metric:         MetricCosine,
		},
		FullText: FullTextConfig{
			Tokenizer: TokenizerAuto,
			StopWords: nil,
			Stemming:  false,
			K1:        1.2,
			B:         0.75,
		},
		Scopes: ScopeLimits{
			GlobalMax:  100_000,
			AgentMax:   50_000,
			UserMax:    20_000,
			SessionMax: 5_000,
		},
		Blocks: BlockConfig{
			DefaultCapacityChars: 2000,
			RewriteStrategy:      RewriteHybrid,
		},
		Consolidation: ConsolidationConfig{
			IntervalSecs:          3600,
			MinClusterSize:        3,
			AgeWindowSecs:         86400,
			ImportanceDecayFactor: 0.5,
		},
		Deadlines: DeadlineConfig{
			DefaultMs:  5000,
			EmbedderMs: 10000,
			RewriterMs: 15000,
		},
		DecayInterval: 60 * time.Second,
		LockStripes:   1024,
		KVBackend:     "sqlite",
	}
	c.Scopes.DecayLambda.Global = 0.01
	c.Scopes.DecayLambda.Agent = 0.05
	c.Scopes.DecayLambda.User = 0.1
	c.Scopes.DecayLambda.Session = 0.3
	c.Scopes.ReinforcementBoost = 0.05
	return c
}

// Validate enforces the invariants required for the engine to start:
// a positive embedding dimension, positive vector-index parameters, BM25
// k1 >= 0 and b within [0,1], a positive lock stripe count, and a
// non-empty KV backend selection.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return enginerr.New("Config.Validate", enginerr.CodeInvalidArgument, fmt.Errorf("embedding_dim must be > 0"))
	}
	if c.VectorIndex.M <= 0 || c.VectorIndex.EfConstruction <= 0 || c.VectorIndex.EfSearch <= 0 {
		return enginerr.New("Config.Validate", enginerr.CodeInvalidArgument, fmt.Errorf("vector_index parameters must be > 0"))
	}
	if c.FullText.K1 < 0 || c.FullText.B < 0 || c.FullText.B > 1 {
		return enginerr.New("Config.Validate", enginerr.CodeInvalidArgument, fmt.Errorf("fulltext k1/b out of range"))
	}
	if c.LockStripes <= 0 {
		return enginerr.New("Config.Validate", enginerr.CodeInvalidArgument, fmt.Errorf("lock_stripes must be > 0"))
	}
	if c.KVBackend == "" {
		return enginerr.New("Config.Validate", enginerr.CodeInvalidArgument, fmt.Errorf("kv_backend must be set"))
	}
	return nil
}

// LoadFromEnv locates a .env file via FindEnvFile (searching the working
// directory, then up to 5 parent directories), loads it if present, and
// overlays environment variables onto Default().
func LoadFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	c := Default()
	c.KVBackend = getEnvOrDefault("MEMENGINE_KV_BACKEND", c.KVBackend)
	if v := os.Getenv("MEMENGINE_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.EmbeddingDim = n
		}
	}
	if v := os.Getenv("MEMENGINE_VECTOR_ALGORITHM"); v != "" {
		c.VectorIndex.Algorithm = VectorAlgorithm(v)
	}
	if v := os.Getenv("MEMENGINE_FULLTEXT_TOKENIZER"); v != "" {
		c.FullText.Tokenizer = Tokenizer(v)
	}
	return c, nil
}

// LoadFromJSON reads a Config from a JSON file, starting from Default() so
// unset fields keep their documented defaults.
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, enginerr.New("LoadFromJSON", enginerr.CodeStorage, err)
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, enginerr.New("LoadFromJSON", enginerr.CodeInvalidArgument, err)
	}
	return c, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// FindEnvFile searches the working directory, then up to 5 parent
// directories, for a .env or .env.example file.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
		envPath := filepath.Join(dir, ".env")
		exPath := filepath.Join(dir, ".env.example")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(exPath); err == nil {
			return exPath, true
		}
	}
	return "", false
}
