package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for schemaguard-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8710"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL, optional persistent cache tier)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional shared cache tier)
	Redis RedisConfig `yaml:"redis"`

	// AI collaborator configuration (optional escalation backend)
	AI AIConfig `yaml:"ai"`

	// Classifier thresholds
	Classifier ClassifierConfig `yaml:"classifier"`

	// Batch partitioning limits
	Batch BatchConfig `yaml:"batch"`

	// Cache sizing and eviction
	Cache CacheConfig `yaml:"cache"`

	// Pattern sources
	Patterns PatternsConfig `yaml:"patterns"`
}

// DatabaseConfig holds PostgreSQL configuration for the persistent cache tier.
// An empty host disables the tier; the engine then runs memory-only.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"schemaguard"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"schemaguard"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// IsConfigured returns true if a persistent cache database is configured.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.Host != ""
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the shared cache tier.
// An empty host disables the tier.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig holds the escalation backend settings. Classification is fully
// functional without it; low-confidence fields then keep their local results.
type AIConfig struct {
	// Provider selects the client implementation: "openai" for any
	// OpenAI-compatible endpoint, "anthropic" for the Anthropic API.
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:""`
	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML

	TimeoutSeconds int `yaml:"timeout_seconds" env:"AI_TIMEOUT_SECONDS" env-default:"60"`
	MaxConcurrent  int `yaml:"max_concurrent" env:"AI_MAX_CONCURRENT" env-default:"4"`
	MaxRetries     int `yaml:"max_retries" env:"AI_MAX_RETRIES" env-default:"2"`
}

// IsAvailable returns true if an AI collaborator is configured.
func (c *AIConfig) IsAvailable() bool {
	return c.Provider != "" && c.Model != ""
}

// ClassifierConfig holds matching thresholds. All values are tunable;
// defaults reproduce the documented stage behavior.
type ClassifierConfig struct {
	// FuzzyThreshold is the minimum token-set similarity for a fuzzy match.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" env:"CLASSIFIER_FUZZY_THRESHOLD" env-default:"0.75"`
	// EscalationThreshold marks fields below this confidence as edge cases.
	EscalationThreshold float64 `yaml:"escalation_threshold" env:"CLASSIFIER_ESCALATION_THRESHOLD" env-default:"0.70"`
	// EscalationCeiling caps the fraction of fields sent to the AI collaborator.
	EscalationCeiling float64 `yaml:"escalation_ceiling" env:"CLASSIFIER_ESCALATION_CEILING" env-default:"0.05"`
	// SessionBudgetSeconds bounds one classify_schema call end to end.
	SessionBudgetSeconds int `yaml:"session_budget_seconds" env:"CLASSIFIER_SESSION_BUDGET_SECONDS" env-default:"120"`
}

// BatchConfig holds schema partitioning limits.
type BatchConfig struct {
	// SingleBatchMax is the column count at or below which the whole schema
	// forms one batch.
	SingleBatchMax int `yaml:"single_batch_max" env:"BATCH_SINGLE_BATCH_MAX" env-default:"20"`
	// TableSplitThreshold is the per-table column count at or above which a
	// table is split into sub-batches.
	TableSplitThreshold int `yaml:"table_split_threshold" env:"BATCH_TABLE_SPLIT_THRESHOLD" env-default:"75"`
	// SubBatchSize is the column cap for each sub-batch of an oversized table.
	SubBatchSize int `yaml:"sub_batch_size" env:"BATCH_SUB_BATCH_SIZE" env-default:"50"`
	// MaxWorkers bounds concurrent batch classification within one session.
	MaxWorkers int `yaml:"max_workers" env:"BATCH_MAX_WORKERS" env-default:"4"`
}

// CacheConfig holds fast-tier sizing and eviction settings.
type CacheConfig struct {
	// MaxEntries bounds the in-memory tier; least recently used entries are
	// evicted first.
	MaxEntries int `yaml:"max_entries" env:"CACHE_MAX_ENTRIES" env-default:"256"`
	// TTLMinutes is how long an entry stays valid after creation.
	TTLMinutes int `yaml:"ttl_minutes" env:"CACHE_TTL_MINUTES" env-default:"10080"`
	// SimilarityThreshold is the minimum Jaccard similarity for reusing a
	// near-matching schema's results.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"CACHE_SIMILARITY_THRESHOLD" env-default:"0.95"`
}

// PatternsConfig holds pattern source settings. The embedded recognizer
// corpus is always loaded; an external file extends or overrides it.
type PatternsConfig struct {
	// File is an optional path to a recognizer YAML file.
	File string `yaml:"file" env:"PATTERNS_FILE" env-default:""`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When no config.yaml exists, configuration comes from environment
// variables alone. The version parameter is injected at build time and set on
// the returned Config. Secrets (PGPASSWORD, REDIS_PASSWORD, AI_API_KEY) must
// come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate rejects threshold and sizing values the engine cannot run with.
func (c *Config) validate() error {
	if c.Classifier.FuzzyThreshold <= 0 || c.Classifier.FuzzyThreshold > 1 {
		return fmt.Errorf("classifier.fuzzy_threshold must be in (0,1], got %v", c.Classifier.FuzzyThreshold)
	}
	if c.Classifier.EscalationThreshold < 0 || c.Classifier.EscalationThreshold > 1 {
		return fmt.Errorf("classifier.escalation_threshold must be in [0,1], got %v", c.Classifier.EscalationThreshold)
	}
	if c.Classifier.EscalationCeiling < 0 || c.Classifier.EscalationCeiling > 1 {
		return fmt.Errorf("classifier.escalation_ceiling must be in [0,1], got %v", c.Classifier.EscalationCeiling)
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in (0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Batch.SingleBatchMax < 1 {
		return fmt.Errorf("batch.single_batch_max must be positive, got %d", c.Batch.SingleBatchMax)
	}
	if c.Batch.SubBatchSize < 1 {
		return fmt.Errorf("batch.sub_batch_size must be positive, got %d", c.Batch.SubBatchSize)
	}
	if c.Batch.TableSplitThreshold <= c.Batch.SubBatchSize {
		return fmt.Errorf("batch.table_split_threshold (%d) must exceed batch.sub_batch_size (%d)",
			c.Batch.TableSplitThreshold, c.Batch.SubBatchSize)
	}
	if c.Batch.MaxWorkers < 1 {
		return fmt.Errorf("batch.max_workers must be positive, got %d", c.Batch.MaxWorkers)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	return nil
}
