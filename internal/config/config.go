package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freethrow/tanalyst/internal/domain/article"
)

// Config holds the tanalyst search service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, postgres (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"`
	KeyPrefix        string   `yaml:"key_prefix"`
	IndexName        string   `yaml:"index_name"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the encoder and its caches.
type EmbeddingConfig struct {
	BaseURL             string         `yaml:"base_url"`
	APIKey              string         `yaml:"api_key"`
	Model               string         `yaml:"model"`
	Dimensions          int            `yaml:"dimensions"`
	QueryInstruction    string         `yaml:"query_instruction"`
	DocumentInstruction string         `yaml:"document_instruction"`
	QueryMaxChars       int            `yaml:"query_max_chars"`
	DocumentMaxChars    int            `yaml:"document_max_chars"`
	LoadTimeoutSec      int            `yaml:"load_timeout_sec"`
	LoadCooldownSec     int            `yaml:"load_cooldown_sec"`
	CacheTTLSec         int            `yaml:"cache_ttl_sec"`
	LRUSize             int            `yaml:"lru_size"`
	Backfill            BackfillConfig `yaml:"backfill"`
}

// BackfillConfig holds document embedding backfill settings.
type BackfillConfig struct {
	BatchSize    int `yaml:"batch_size"`
	MaxAttempts  int `yaml:"max_attempts"`
	BaseDelaySec int `yaml:"base_delay_sec"`
	MaxDelaySec  int `yaml:"max_delay_sec"`
}

// RerankConfig holds the reranker endpoints.
type RerankConfig struct {
	CrossEncoderURL string `yaml:"cross_encoder_url"`
	ClassifierURL   string `yaml:"classifier_url"`
	Model           string `yaml:"model"`
	APIKey          string `yaml:"api_key"`
	BatchSize       int    `yaml:"batch_size"`
	ExcerptChars    int    `yaml:"excerpt_chars"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	LoadCooldownSec int    `yaml:"load_cooldown_sec"`
}

// Retrieval backends.
const (
	BackendIndex      = "index"
	BackendBruteForce = "bruteforce"
	BackendScan       = "scan"
)

// SearchConfig holds orchestrator defaults.
type SearchConfig struct {
	DefaultMode         string         `yaml:"default_mode"`
	VectorWeight        float64        `yaml:"vector_weight"`
	LexicalWeight       float64        `yaml:"lexical_weight"`
	RRFK                int            `yaml:"rrf_k"`
	CandidateMultiplier int            `yaml:"candidate_multiplier"`
	DefaultLimit        int            `yaml:"default_limit"`
	MaxLimit            int            `yaml:"max_limit"`
	RerankDefault       bool           `yaml:"rerank_default"`
	VectorBackend       string         `yaml:"vector_backend"`  // index, bruteforce
	LexicalBackend      string         `yaml:"lexical_backend"` // index, scan
	LexicalFields       []string       `yaml:"lexical_fields"`
	FuzzyMaxEdits       int            `yaml:"fuzzy_max_edits"`
	FuzzyPrefixLength   int            `yaml:"fuzzy_prefix_length"`
	Timeouts            TimeoutsConfig `yaml:"timeouts"`
	Related             RelatedConfig  `yaml:"related"`
}

// TimeoutsConfig holds per-stage timeouts in milliseconds.
type TimeoutsConfig struct {
	EmbedMs   int `yaml:"embed_ms"`
	VectorMs  int `yaml:"vector_ms"`
	LexicalMs int `yaml:"lexical_ms"`
}

// RelatedConfig holds related-articles settings.
type RelatedConfig struct {
	Limit     int `yaml:"limit"`
	CacheSize int `yaml:"cache_size"`
	CacheTTLs int `yaml:"cache_ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	c.HTTP.applyDefaults()
	c.Database.applyDefaults()
	c.Embedding.applyDefaults()
	c.Rerank.applyDefaults()
	c.Search.applyDefaults()
}

func (h *HTTPConfig) applyDefaults() {
	setIntDefault(&h.ReadTimeoutSec, 10)
	setIntDefault(&h.WriteTimeoutSec, 30)
	setIntDefault(&h.ShutdownSec, 10)
}

func (d *DatabaseConfig) applyDefaults() {
	if d.Driver == "" {
		d.Driver = DriverRedis
	}
	if d.KeyPrefix == "" {
		d.KeyPrefix = "article:"
	}
	if d.IndexName == "" {
		d.IndexName = "article:idx"
	}
	setIntDefault(&d.HNSWM, 16)
	setIntDefault(&d.HNSWEFConstruct, 200)
	setIntDefault(&d.ReadinessTimeout, 10)
}

func (e *EmbeddingConfig) applyDefaults() {
	if e.Model == "" {
		e.Model = "nomic-embed-text-v1.5"
	}
	if e.QueryInstruction == "" {
		e.QueryInstruction = "search_query: "
	}
	if e.DocumentInstruction == "" {
		e.DocumentInstruction = "search_document: "
	}
	setIntDefault(&e.Dimensions, 768)
	setIntDefault(&e.QueryMaxChars, 2000)
	setIntDefault(&e.DocumentMaxChars, 8000)
	setIntDefault(&e.LoadTimeoutSec, 30)
	setIntDefault(&e.LoadCooldownSec, 30)
	setIntDefault(&e.CacheTTLSec, 7*24*3600)
	setIntDefault(&e.LRUSize, 1024)
	setIntDefault(&e.Backfill.BatchSize, 32)
	setIntDefault(&e.Backfill.MaxAttempts, 3)
	setIntDefault(&e.Backfill.BaseDelaySec, 60)
	setIntDefault(&e.Backfill.MaxDelaySec, 300)
}

func (r *RerankConfig) applyDefaults() {
	setIntDefault(&r.BatchSize, 32)
	setIntDefault(&r.ExcerptChars, 500)
	setIntDefault(&r.TimeoutMs, 3000)
	setIntDefault(&r.LoadCooldownSec, 60)
}

func (s *SearchConfig) applyDefaults() {
	if s.DefaultMode == "" {
		s.DefaultMode = "hybrid"
	}
	if s.VectorWeight == 0 && s.LexicalWeight == 0 {
		s.VectorWeight, s.LexicalWeight = 0.6, 0.4
	}
	if s.VectorBackend == "" {
		s.VectorBackend = BackendIndex
	}
	if s.LexicalBackend == "" {
		s.LexicalBackend = BackendIndex
	}
	if len(s.LexicalFields) == 0 {
		s.LexicalFields = []string{"title_it", "content_it"}
	}
	setIntDefault(&s.RRFK, 60)
	setIntDefault(&s.CandidateMultiplier, 2)
	setIntDefault(&s.DefaultLimit, 18)
	setIntDefault(&s.MaxLimit, 100)
	setIntDefault(&s.FuzzyMaxEdits, 1)
	setIntDefault(&s.FuzzyPrefixLength, 2)
	setIntDefault(&s.Timeouts.EmbedMs, 5000)
	setIntDefault(&s.Timeouts.VectorMs, 3000)
	setIntDefault(&s.Timeouts.LexicalMs, 3000)
	setIntDefault(&s.Related.Limit, 6)
	setIntDefault(&s.Related.CacheSize, 512)
	setIntDefault(&s.Related.CacheTTLs, 600)
}

func setIntDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be redis, valkey or postgres, got %q", c.Database.Driver)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.Search.VectorWeight < 0 || c.Search.LexicalWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	switch c.Search.VectorBackend {
	case BackendIndex, BackendBruteForce:
	default:
		return fmt.Errorf("search.vector_backend must be %q or %q, got %q",
			BackendIndex, BackendBruteForce, c.Search.VectorBackend)
	}
	switch c.Search.LexicalBackend {
	case BackendIndex, BackendScan:
	default:
		return fmt.Errorf("search.lexical_backend must be %q or %q, got %q",
			BackendIndex, BackendScan, c.Search.LexicalBackend)
	}
	for _, f := range c.Search.LexicalFields {
		if !article.IsTextField(f) {
			return fmt.Errorf("search.lexical_fields: %q is not one of %s",
				f, strings.Join(article.TextFields, ", "))
		}
	}
	if c.Search.FuzzyMaxEdits > 2 {
		return fmt.Errorf("search.fuzzy_max_edits must be at most 2, got %d", c.Search.FuzzyMaxEdits)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Seconds converts a second setting to a duration.
func Seconds(s int) time.Duration { return time.Duration(s) * time.Second }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from package directories.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b)))
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

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
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
