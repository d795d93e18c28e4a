package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the chatdex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Refine    RefineConfig    `yaml:"refine"`
	Stream    StreamConfig    `yaml:"stream"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CorpusConfig holds corpus source settings.
type CorpusConfig struct {
	Path string `yaml:"path"` // CSV with optional question/answer columns
}

// RetrieverConfig selects and tunes the retrieval variant. The variant
// is a construction-time choice; a running instance serves exactly one.
type RetrieverConfig struct {
	Variant     string `yaml:"variant"` // lexical (default) or semantic
	TopK        int    `yaml:"top_k"`   // default candidate count per query
	MaxFeatures int    `yaml:"max_features"` // lexical vocabulary cap
	NgramMin    int    `yaml:"ngram_min"`
	NgramMax    int    `yaml:"ngram_max"`
}

// EmbeddingConfig holds embedding provider settings (semantic variant only).
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// RefineConfig holds answer refinement settings. Refinement is optional;
// when disabled the resolver's fallback answer is streamed unchanged.
type RefineConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// StreamConfig holds chunked emission settings.
type StreamConfig struct {
	ChunkMode      string `yaml:"chunk_mode"` // word (default) or char
	PaceIntervalMS int    `yaml:"pace_interval_ms"`
}

// CacheConfig holds optional embedding cache settings. Empty addrs
// disables the cache entirely.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLHours         int      `yaml:"ttl_hours"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streams stay open far longer than a typical JSON response.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Retriever.Variant == "" {
		c.Retriever.Variant = "lexical"
	}
	if c.Retriever.TopK <= 0 {
		c.Retriever.TopK = 3
	}
	if c.Retriever.MaxFeatures <= 0 {
		c.Retriever.MaxFeatures = 10000
	}
	if c.Retriever.NgramMin <= 0 {
		c.Retriever.NgramMin = 1
	}
	if c.Retriever.NgramMax <= 0 {
		c.Retriever.NgramMax = 2
	}
	if c.Stream.ChunkMode == "" {
		c.Stream.ChunkMode = "word"
	}
	if c.Stream.PaceIntervalMS <= 0 {
		c.Stream.PaceIntervalMS = 30
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 30 * 24
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Corpus.Path == "" {
		return fmt.Errorf("corpus.path is required")
	}
	switch c.Retriever.Variant {
	case "lexical", "semantic":
		// ok
	default:
		return fmt.Errorf("retriever.variant must be \"lexical\" or \"semantic\", got %q", c.Retriever.Variant)
	}
	if c.Retriever.NgramMin > c.Retriever.NgramMax {
		return fmt.Errorf("retriever.ngram_min %d exceeds ngram_max %d", c.Retriever.NgramMin, c.Retriever.NgramMax)
	}
	if c.Retriever.Variant == "semantic" && c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required for the semantic variant")
	}
	switch c.Stream.ChunkMode {
	case "word", "char":
		// ok
	default:
		return fmt.Errorf("stream.chunk_mode must be \"word\" or \"char\", got %q", c.Stream.ChunkMode)
	}
	if c.Refine.Enabled && c.Refine.Model == "" {
		return fmt.Errorf("refine.model is required when refine.enabled is true")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
