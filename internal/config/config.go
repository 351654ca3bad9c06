// Package config loads and validates the organizer engine's configuration,
// merging hardcoded defaults, a YAML config file, and environment variable
// overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete organizer engine configuration.
type Config struct {
	Version        int                  `yaml:"version" json:"version"`
	Roots          RootsConfig          `yaml:"roots" json:"roots"`
	Scanner        ScannerConfig        `yaml:"scanner" json:"scanner"`
	Store          StoreConfig          `yaml:"store" json:"store"`
	Embeddings     EmbeddingsConfig     `yaml:"embeddings" json:"embeddings"`
	VectorStore    VectorStoreConfig    `yaml:"vector_store" json:"vector_store"`
	Classification ClassificationConfig `yaml:"classification" json:"classification"`
	Extraction     ExtractionConfig     `yaml:"extraction" json:"extraction"`
	Rules          RulesConfig          `yaml:"rules" json:"rules"`
	Apply          ApplyConfig          `yaml:"apply" json:"apply"`
	Watcher        WatcherConfig        `yaml:"watcher" json:"watcher"`
	Search         SearchConfig         `yaml:"search" json:"search"`
	Performance    PerformanceConfig    `yaml:"performance" json:"performance"`
	LogLevel       string               `yaml:"log_level" json:"log_level"`
}

// RootsConfig configures which directories the scanner covers.
type RootsConfig struct {
	Paths            []string `yaml:"paths" json:"paths"`
	ExcludePatterns  []string `yaml:"exclude" json:"exclude"`
	RespectGitignore bool     `yaml:"respect_gitignore" json:"respect_gitignore"`
}

// ScannerConfig tunes the scan pass.
type ScannerConfig struct {
	// HashMode is one of "none", "fast", "full" (spec.md §4.1).
	HashMode       string `yaml:"hash_mode" json:"hash_mode"`
	Workers        int    `yaml:"workers" json:"workers"`
	MaxFileSizeMB  int    `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	FollowSymlinks bool   `yaml:"follow_symlinks" json:"follow_symlinks"`
}

// StoreConfig configures the relational metadata store.
type StoreConfig struct {
	// Dir is the directory holding organizer.db, the keyword index, and
	// the lock file. Defaults to ~/.organizer.
	Dir           string `yaml:"dir" json:"dir"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // "noop" or "remote"
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// VectorStoreConfig configures the vector database backend.
type VectorStoreConfig struct {
	Backend    string `yaml:"backend" json:"backend"` // "noop" or "qdrant"
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Collection string `yaml:"collection" json:"collection"`
	Metric     string `yaml:"metric" json:"metric"` // "cosine", "dot", "euclidean"
}

// ClassificationConfig tunes the heuristic -> kNN -> LLM fallback chain
// (spec.md §4.4).
type ClassificationConfig struct {
	HeuristicConfidenceThreshold float64 `yaml:"heuristic_confidence_threshold" json:"heuristic_confidence_threshold"`
	KNNNeighbors                 int     `yaml:"knn_neighbors" json:"knn_neighbors"`
	KNNConfidenceThreshold       float64 `yaml:"knn_confidence_threshold" json:"knn_confidence_threshold"`
	LLMEnabled                   bool    `yaml:"llm_enabled" json:"llm_enabled"`
	LLMModel                     string  `yaml:"llm_model" json:"llm_model"`
	LLMEndpoint                  string  `yaml:"llm_endpoint" json:"llm_endpoint"`
}

// ExtractionConfig tunes the extractor's MIME detection, chunking, and
// per-family byte caps (spec.md §4.2).
type ExtractionConfig struct {
	ChunkTargetBytes  int  `yaml:"chunk_target_bytes" json:"chunk_target_bytes"`
	TextyReadCapBytes int  `yaml:"texty_read_cap_bytes" json:"texty_read_cap_bytes"`
	ByteCapMB         int  `yaml:"byte_cap_mb" json:"byte_cap_mb"`
	OCREnabled        bool `yaml:"ocr_enabled" json:"ocr_enabled"`
	OCRByteCap        int  `yaml:"ocr_byte_cap" json:"ocr_byte_cap"`
}

// RulesConfig points at the declarative rule files (spec.md §6).
type RulesConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// ApplyConfig configures the apply engine's safety gates and trash layout
// (spec.md §4.6).
type ApplyConfig struct {
	// ConflictPolicy is one of "rename", "skip", "overwrite".
	ConflictPolicy string `yaml:"conflict_policy" json:"conflict_policy"`
	TrashDir       string `yaml:"trash_dir" json:"trash_dir"`
	DryRun         bool   `yaml:"dry_run" json:"dry_run"`
	// CopyThenDelete makes move/rename use copy+remove instead of
	// rename(2), needed when source and destination may be on different
	// filesystems.
	CopyThenDelete bool `yaml:"copy_then_delete" json:"copy_then_delete"`
	// AllowPaths, when non-empty, restricts applied actions to paths
	// under at least one of these prefixes. DenyPaths always wins over
	// AllowPaths.
	AllowPaths []string `yaml:"allow_paths" json:"allow_paths"`
	DenyPaths  []string `yaml:"deny_paths" json:"deny_paths"`
}

// WatcherConfig configures fsnotify-driven incremental reprocessing.
type WatcherConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	DebounceDelay string `yaml:"debounce_delay" json:"debounce_delay"`
}

// SearchConfig configures hybrid keyword+vector search (spec.md §4.9).
type SearchConfig struct {
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordLimit int     `yaml:"keyword_limit" json:"keyword_limit"`
	VectorLimit  int     `yaml:"vector_limit" json:"vector_limit"`
	MaxResults   int     `yaml:"max_results" json:"max_results"`
}

// PerformanceConfig tunes concurrency across components (spec.md §5).
type PerformanceConfig struct {
	PipelineWorkers int `yaml:"pipeline_workers" json:"pipeline_workers"`
	EmbedBatchSize  int `yaml:"embed_batch_size" json:"embed_batch_size"`
}

var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.organizer/**",
	"**/.Trash/**",
	"**/*.tmp",
	"**/.DS_Store",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Roots: RootsConfig{
			Paths:            []string{},
			ExcludePatterns:  defaultExcludePatterns,
			RespectGitignore: false,
		},
		Scanner: ScannerConfig{
			HashMode:       "fast",
			Workers:        runtime.NumCPU(),
			MaxFileSizeMB:  500,
			FollowSymlinks: false,
		},
		Store: StoreConfig{
			Dir:           defaultStoreDir(),
			SQLiteCacheMB: 64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "noop",
			Model:      "",
			Dimensions: 384,
			BatchSize:  32,
		},
		VectorStore: VectorStoreConfig{
			Backend:    "noop",
			Endpoint:   "http://localhost:6334",
			Collection: "organizer_chunks",
			Metric:     "cosine",
		},
		Classification: ClassificationConfig{
			HeuristicConfidenceThreshold: 0.8,
			KNNNeighbors:                 5,
			KNNConfidenceThreshold:       0.6,
			LLMEnabled:                   false,
			LLMModel:                     "",
			LLMEndpoint:                  "",
		},
		Extraction: ExtractionConfig{
			ChunkTargetBytes:  2048,
			TextyReadCapBytes: 64 * 1024,
			ByteCapMB:         10,
			OCREnabled:        false,
			OCRByteCap:        1024 * 1024,
		},
		Rules: RulesConfig{
			Dir: filepath.Join(defaultStoreDir(), "rules"),
		},
		Apply: ApplyConfig{
			ConflictPolicy: "rename",
			TrashDir:       filepath.Join(defaultStoreDir(), "trash"),
			DryRun:         false,
		},
		Watcher: WatcherConfig{
			Enabled:       true,
			DebounceDelay: "750ms",
		},
		Search: SearchConfig{
			VectorWeight: 0.5,
			KeywordLimit: 50,
			VectorLimit:  50,
			MaxResults:   20,
		},
		Performance: PerformanceConfig{
			PipelineWorkers: runtime.NumCPU(),
			EmbedBatchSize:  32,
		},
		LogLevel: "info",
	}
}

// defaultStoreDir returns ~/.organizer, falling back to the OS temp
// directory if the home directory is unavailable.
func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".organizer")
	}
	return filepath.Join(home, ".organizer")
}

// Load builds a Config from hardcoded defaults, an optional YAML file at
// path, and ORGANIZER_* environment variable overrides, in that order of
// increasing precedence.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Roots.Paths) > 0 {
		c.Roots.Paths = other.Roots.Paths
	}
	if len(other.Roots.ExcludePatterns) > 0 {
		c.Roots.ExcludePatterns = append(c.Roots.ExcludePatterns, other.Roots.ExcludePatterns...)
	}
	if other.Roots.RespectGitignore {
		c.Roots.RespectGitignore = other.Roots.RespectGitignore
	}

	if other.Scanner.HashMode != "" {
		c.Scanner.HashMode = other.Scanner.HashMode
	}
	if other.Scanner.Workers != 0 {
		c.Scanner.Workers = other.Scanner.Workers
	}
	if other.Scanner.MaxFileSizeMB != 0 {
		c.Scanner.MaxFileSizeMB = other.Scanner.MaxFileSizeMB
	}
	if other.Scanner.FollowSymlinks {
		c.Scanner.FollowSymlinks = other.Scanner.FollowSymlinks
	}

	if other.Store.Dir != "" {
		c.Store.Dir = other.Store.Dir
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}

	if other.VectorStore.Backend != "" {
		c.VectorStore.Backend = other.VectorStore.Backend
	}
	if other.VectorStore.Endpoint != "" {
		c.VectorStore.Endpoint = other.VectorStore.Endpoint
	}
	if other.VectorStore.Collection != "" {
		c.VectorStore.Collection = other.VectorStore.Collection
	}
	if other.VectorStore.Metric != "" {
		c.VectorStore.Metric = other.VectorStore.Metric
	}

	if other.Classification.HeuristicConfidenceThreshold != 0 {
		c.Classification.HeuristicConfidenceThreshold = other.Classification.HeuristicConfidenceThreshold
	}
	if other.Classification.KNNNeighbors != 0 {
		c.Classification.KNNNeighbors = other.Classification.KNNNeighbors
	}
	if other.Classification.KNNConfidenceThreshold != 0 {
		c.Classification.KNNConfidenceThreshold = other.Classification.KNNConfidenceThreshold
	}
	if other.Classification.LLMEnabled {
		c.Classification.LLMEnabled = other.Classification.LLMEnabled
	}
	if other.Classification.LLMModel != "" {
		c.Classification.LLMModel = other.Classification.LLMModel
	}
	if other.Classification.LLMEndpoint != "" {
		c.Classification.LLMEndpoint = other.Classification.LLMEndpoint
	}

	if other.Extraction.ChunkTargetBytes != 0 {
		c.Extraction.ChunkTargetBytes = other.Extraction.ChunkTargetBytes
	}
	if other.Extraction.TextyReadCapBytes != 0 {
		c.Extraction.TextyReadCapBytes = other.Extraction.TextyReadCapBytes
	}
	if other.Extraction.ByteCapMB != 0 {
		c.Extraction.ByteCapMB = other.Extraction.ByteCapMB
	}
	if other.Extraction.OCREnabled {
		c.Extraction.OCREnabled = other.Extraction.OCREnabled
	}
	if other.Extraction.OCRByteCap != 0 {
		c.Extraction.OCRByteCap = other.Extraction.OCRByteCap
	}

	if other.Rules.Dir != "" {
		c.Rules.Dir = other.Rules.Dir
	}

	if other.Apply.ConflictPolicy != "" {
		c.Apply.ConflictPolicy = other.Apply.ConflictPolicy
	}
	if other.Apply.TrashDir != "" {
		c.Apply.TrashDir = other.Apply.TrashDir
	}
	if other.Apply.DryRun {
		c.Apply.DryRun = other.Apply.DryRun
	}
	if other.Apply.CopyThenDelete {
		c.Apply.CopyThenDelete = other.Apply.CopyThenDelete
	}
	if len(other.Apply.AllowPaths) > 0 {
		c.Apply.AllowPaths = other.Apply.AllowPaths
	}
	if len(other.Apply.DenyPaths) > 0 {
		c.Apply.DenyPaths = other.Apply.DenyPaths
	}

	if other.Watcher.DebounceDelay != "" {
		c.Watcher.DebounceDelay = other.Watcher.DebounceDelay
	}

	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.KeywordLimit != 0 {
		c.Search.KeywordLimit = other.Search.KeywordLimit
	}
	if other.Search.VectorLimit != 0 {
		c.Search.VectorLimit = other.Search.VectorLimit
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Performance.PipelineWorkers != 0 {
		c.Performance.PipelineWorkers = other.Performance.PipelineWorkers
	}
	if other.Performance.EmbedBatchSize != 0 {
		c.Performance.EmbedBatchSize = other.Performance.EmbedBatchSize
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies ORGANIZER_* environment variable overrides,
// the highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ORGANIZER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ORGANIZER_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("ORGANIZER_HASH_MODE"); v != "" {
		c.Scanner.HashMode = v
	}
	if v := os.Getenv("ORGANIZER_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("ORGANIZER_VECTOR_STORE_BACKEND"); v != "" {
		c.VectorStore.Backend = v
	}
	if v := os.Getenv("ORGANIZER_VECTOR_STORE_ENDPOINT"); v != "" {
		c.VectorStore.Endpoint = v
	}
	if v := os.Getenv("ORGANIZER_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("ORGANIZER_DRY_RUN"); v != "" {
		c.Apply.DryRun = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("ORGANIZER_CONFLICT_POLICY"); v != "" {
		c.Apply.ConflictPolicy = v
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	switch c.Scanner.HashMode {
	case "none", "fast", "full":
	default:
		return fmt.Errorf("scanner.hash_mode must be 'none', 'fast', or 'full', got %q", c.Scanner.HashMode)
	}

	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}

	switch c.Apply.ConflictPolicy {
	case "rename", "skip", "overwrite":
	default:
		return fmt.Errorf("apply.conflict_policy must be 'rename', 'skip', or 'overwrite', got %q", c.Apply.ConflictPolicy)
	}

	switch c.Embeddings.Provider {
	case "noop", "remote":
	default:
		return fmt.Errorf("embeddings.provider must be 'noop' or 'remote', got %q", c.Embeddings.Provider)
	}

	switch c.VectorStore.Backend {
	case "noop", "qdrant":
	default:
		return fmt.Errorf("vector_store.backend must be 'noop' or 'qdrant', got %q", c.VectorStore.Backend)
	}

	if c.Classification.HeuristicConfidenceThreshold < 0 || c.Classification.HeuristicConfidenceThreshold > 1 {
		return fmt.Errorf("classification.heuristic_confidence_threshold must be between 0 and 1, got %f", c.Classification.HeuristicConfidenceThreshold)
	}
	if c.Classification.KNNConfidenceThreshold < 0 || c.Classification.KNNConfidenceThreshold > 1 {
		return fmt.Errorf("classification.knn_confidence_threshold must be between 0 and 1, got %f", c.Classification.KNNConfidenceThreshold)
	}
	if c.Extraction.ChunkTargetBytes <= 0 {
		return fmt.Errorf("extraction.chunk_target_bytes must be positive, got %d", c.Extraction.ChunkTargetBytes)
	}
	if c.Extraction.ByteCapMB <= 0 {
		return fmt.Errorf("extraction.byte_cap_mb must be positive, got %d", c.Extraction.ByteCapMB)
	}

	if math.IsNaN(c.Search.VectorWeight) {
		return fmt.Errorf("search.vector_weight must not be NaN")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
