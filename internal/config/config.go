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
)

// Inference providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Quota ledger backends.
const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
	LedgerSQLite = "sqlite"
)

// Config holds the emsal API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Inference InferenceConfig `yaml:"inference"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Quota     QuotaConfig     `yaml:"quota"`
	Tracing   TracingConfig   `yaml:"tracing"`
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

// DatabaseConfig holds Redis/Valkey connection settings and the SQLite ledger path.
// Redis is optional: with no addrs, cache and ledger must use local backends.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	SQLitePath       string   `yaml:"sqlite_path"`
}

// InferenceConfig selects and configures the LLM provider.
type InferenceConfig struct {
	Provider          string `yaml:"provider"` // openai (default), anthropic
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	MaxTokens         int    `yaml:"max_tokens"`
	DocumentMaxTokens int    `yaml:"document_max_tokens"`
}

// RetrievalConfig configures the decision search service.
type RetrievalConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	Concurrency int    `yaml:"concurrency"` // parallel keyword searches per run
}

// CacheConfig configures the fingerprint cache tiers.
type CacheConfig struct {
	Backend          string        `yaml:"backend"` // memory (default), redis, none
	KeywordsTTL      time.Duration `yaml:"keywords_ttl"`
	SearchTTL        time.Duration `yaml:"search_ttl"`
	PartialSearchTTL time.Duration `yaml:"partial_search_ttl"`
	ScoresTTL        time.Duration `yaml:"scores_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// PipelineConfig holds analysis limits.
type PipelineConfig struct {
	Deadline           time.Duration `yaml:"deadline"`
	MaxKeywords        int           `yaml:"max_keywords"`
	MaxCaseChars       int           `yaml:"max_case_chars"`
	ScoringConcurrency int           `yaml:"scoring_concurrency"`
	MaxCandidates      int           `yaml:"max_candidates"`
	MaxResults         int           `yaml:"max_results"`
	MinScore           int           `yaml:"min_score"`
	DocumentDecisions  int           `yaml:"document_decisions"`
}

// PlanConfig describes one subscription plan.
type PlanConfig struct {
	Name     string        `yaml:"name"`
	Limit    int64         `yaml:"limit"`  // 0 = unlimited
	Window   string        `yaml:"window"` // day, month, fixed
	Duration time.Duration `yaml:"duration"`
}

// QuotaConfig holds plans and the ledger backend.
type QuotaConfig struct {
	Ledger      string            `yaml:"ledger"` // memory (default), redis, sqlite
	Plans       []PlanConfig      `yaml:"plans"`
	Users       map[string]string `yaml:"users"` // user id -> plan name
	DefaultPlan string            `yaml:"default_plan"`
	Grace       time.Duration     `yaml:"grace"`
}

// TracingConfig configures OTLP trace export. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
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

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// Analyses run up to the pipeline deadline plus document drafting.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Inference.Provider == "" {
		c.Inference.Provider = ProviderOpenAI
	}
	if c.Inference.MaxTokens <= 0 {
		c.Inference.MaxTokens = 1024
	}
	if c.Inference.DocumentMaxTokens <= 0 {
		c.Inference.DocumentMaxTokens = 4096
	}
	if c.Retrieval.TimeoutSec <= 0 {
		c.Retrieval.TimeoutSec = 15
	}
	if c.Retrieval.Concurrency <= 0 {
		c.Retrieval.Concurrency = 8
	}

	c.Cache.applyDefaults()
	c.Pipeline.applyDefaults()
	c.Quota.applyDefaults()

	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1
	}
}

func (c *CacheConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = CacheMemory
	}
	if c.KeywordsTTL <= 0 {
		c.KeywordsTTL = 30 * 24 * time.Hour
	}
	if c.SearchTTL <= 0 {
		c.SearchTTL = 7 * 24 * time.Hour
	}
	if c.PartialSearchTTL <= 0 {
		c.PartialSearchTTL = time.Hour
	}
	if c.ScoresTTL <= 0 {
		c.ScoresTTL = 30 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
}

func (p *PipelineConfig) applyDefaults() {
	if p.Deadline <= 0 {
		p.Deadline = 40 * time.Second
	}
	if p.MaxKeywords <= 0 {
		p.MaxKeywords = 10
	}
	if p.MaxCaseChars <= 0 {
		p.MaxCaseChars = 10000
	}
	if p.ScoringConcurrency <= 0 {
		p.ScoringConcurrency = 5
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = 50
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 10
	}
	if p.DocumentDecisions <= 0 {
		p.DocumentDecisions = 3
	}
}

func (q *QuotaConfig) applyDefaults() {
	if q.Ledger == "" {
		q.Ledger = LedgerMemory
	}
	if len(q.Plans) == 0 {
		q.Plans = []PlanConfig{
			{Name: "trial", Limit: 5, Window: "fixed", Duration: 72 * time.Hour},
			{Name: "pro", Limit: 100, Window: "month"},
		}
	}
	if q.DefaultPlan == "" {
		q.DefaultPlan = q.Plans[0].Name
	}
	if q.Grace <= 0 {
		q.Grace = 48 * time.Hour
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Inference.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("inference.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderAnthropic, c.Inference.Provider)
	}
	if c.Retrieval.BaseURL == "" {
		return fmt.Errorf("retrieval.base_url is required")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("cache.backend %q requires database.addrs", CacheRedis)
		}
	default:
		return fmt.Errorf("cache.backend must be one of memory, redis, none, got %q", c.Cache.Backend)
	}

	switch c.Quota.Ledger {
	case LedgerMemory:
	case LedgerRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("quota.ledger %q requires database.addrs", LedgerRedis)
		}
	case LedgerSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("quota.ledger %q requires database.sqlite_path", LedgerSQLite)
		}
	default:
		return fmt.Errorf("quota.ledger must be one of memory, redis, sqlite, got %q", c.Quota.Ledger)
	}

	if c.Pipeline.MinScore < 0 || c.Pipeline.MinScore > 100 {
		return fmt.Errorf("pipeline.min_score must be between 0 and 100, got %d", c.Pipeline.MinScore)
	}
	if c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be <= 1, got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.Cache.Backend == CacheRedis || c.Quota.Ledger == LedgerRedis
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
