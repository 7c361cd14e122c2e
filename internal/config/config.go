// Package config provides configuration loading and structs for the bunbetsu service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Stream    StreamConfig    `yaml:"stream"`
	Watch     WatchConfig     `yaml:"watch"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	// Synonyms extends the built-in synonym table: canonical term -> variant spellings.
	Synonyms map[string][]string `yaml:"synonyms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RateLimit is the sustained number of query requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// StorageConfig holds paths for the database, the vector index and source data.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// IndexDir holds the persisted vector file and the manifest.
	IndexDir string `yaml:"index_dir"`
	// DataDir holds the rule sheets and text files that are ingested at startup.
	DataDir string `yaml:"data_dir"`
	ChatLog bool   `yaml:"chat_log"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is one of "ollama", "openai" or "mock".
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Dimensions    int    `yaml:"dimensions"`
	CacheSize     int    `yaml:"cache_size"`
	PassagePrefix string `yaml:"passage_prefix"`
	QueryPrefix   string `yaml:"query_prefix"`
	// StrategyTag names the prefixing/normalization strategy recorded in the manifest.
	StrategyTag string `yaml:"strategy_tag"`
}

// LLMConfig holds language-model runtime settings.
type LLMConfig struct {
	// Provider is one of "ollama" or "openai".
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	FallbackModel  string  `yaml:"fallback_model"`
	Temperature    float64 `yaml:"temperature"`
	NumCtx         int     `yaml:"num_ctx"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// RetrievalConfig holds hybrid retrieval and retry-ladder settings.
type RetrievalConfig struct {
	DefaultK       int     `yaml:"default_k"`
	KMin           int     `yaml:"k_min"`
	KMax           int     `yaml:"k_max"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	// PoorItemFraction is the minimum share of results that must carry an item field.
	PoorItemFraction float64 `yaml:"poor_item_fraction"`
	MMRFetchK        int     `yaml:"mmr_fetch_k"`
	MMRLambda        float64 `yaml:"mmr_lambda"`
	// MinLexicalDocs is the corpus size below which the lexical retriever is not built.
	MinLexicalDocs     int `yaml:"min_lexical_docs"`
	ItemPhraseMaxRunes int `yaml:"item_phrase_max_runes"`
}

// RerankConfig holds candidate scoring weights.
type RerankConfig struct {
	LexicalWeight   float64 `yaml:"lexical_weight"`
	SemanticWeight  float64 `yaml:"semantic_weight"`
	OccurrenceBonus float64 `yaml:"occurrence_bonus"`
	// MaxOccurrenceBonus caps the occurrence bonus.
	MaxOccurrenceBonus float64 `yaml:"max_occurrence_bonus"`
	// MaxVariants bounds how many synonym variants of a query are retrieved.
	MaxVariants int `yaml:"max_variants"`
}

// StreamConfig holds streaming bridge settings.
type StreamConfig struct {
	QueueCapacity  int `yaml:"queue_capacity"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// WatchConfig holds data directory watch settings.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
	DebounceMS int      `yaml:"debounce_ms"`
}

// BreakerConfig holds circuit breaker settings for language-model calls.
type BreakerConfig struct {
	Enabled            bool    `yaml:"enabled"`
	MinRequests        uint32  `yaml:"min_requests"`
	FailureRatio       float64 `yaml:"failure_ratio"`
	OpenTimeoutSeconds int     `yaml:"open_timeout_seconds"`
	HalfOpenMaxCalls   uint32  `yaml:"half_open_max_calls"`
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)

	return &cfg, nil
}

// Default returns a configuration built only from defaults and the environment.
// Relative paths are resolved against the working directory.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, wd)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, wd)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, wd)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with the deployment environment variables that are set.
// lookup is os.LookupEnv outside of tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	str("EMBED_MODEL", &cfg.Embedding.Model)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("INDEX_DIR", &cfg.Storage.IndexDir)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("OLLAMA_HOST", &cfg.LLM.BaseURL)
	str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	num("RETRIEVER_K", &cfg.Retrieval.DefaultK)
	num("RETRIEVER_K_MIN", &cfg.Retrieval.KMin)
	num("RETRIEVER_K_MAX", &cfg.Retrieval.KMax)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
