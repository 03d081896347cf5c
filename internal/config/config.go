// Package config loads the DoIt daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// Config holds all DoIt configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Blobs     BlobsConfig      `yaml:"blobs"`
	Oracle    OracleConfig     `yaml:"oracle"`
	Search    SearchConfig     `yaml:"search"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the control-plane HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig configures the SQLite job store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BlobsConfig configures the evidence blob store.
type BlobsConfig struct {
	Root string `yaml:"root"`
}

// OracleConfig configures the classification oracle.
type OracleConfig struct {
	Provider         string `yaml:"provider"` // gemini, openai
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	Timeout          string `yaml:"timeout"`
	StructuredOutput bool   `yaml:"structured_output"`
}

// SearchConfig configures the video search API used by bookmark resolution.
type SearchConfig struct {
	YouTubeAPIKey string `yaml:"youtube_api_key"`
	Timeout       string `yaml:"timeout"`
	MaxResults    int    `yaml:"max_results"`
}

// PipelineConfig configures job execution.
type PipelineConfig struct {
	BatchSize       int    `yaml:"batch_size"`
	LocalAggregates bool   `yaml:"local_aggregates"`
	AnalysisTimeout string `yaml:"analysis_timeout"`
	BookmarkTimeout string `yaml:"bookmark_timeout"`
	ReviewTimeout   string `yaml:"review_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DefaultOpenAIModel is used when the openai provider is selected without a model.
const DefaultOpenAIModel = "gpt-4o-mini"

// DefaultDataDir returns ~/.doit, or .doit when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".doit"
	}
	return filepath.Join(home, ".doit")
}

// DefaultConfigPath returns the config file location inside the data dir.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Server: ServerConfig{Listen: "127.0.0.1:7466"},
		Store:  StoreConfig{Path: filepath.Join(dataDir, "doit.db")},
		Blobs:  BlobsConfig{Root: filepath.Join(dataDir, "blobs")},
		Oracle: OracleConfig{
			Provider:         "gemini",
			Model:            "gemini-2.0-flash",
			Timeout:          "300s",
			StructuredOutput: false,
		},
		Search: SearchConfig{
			Timeout:    "10s",
			MaxResults: 3,
		},
		Pipeline: PipelineConfig{
			BatchSize:       15,
			AnalysisTimeout: "540s",
			BookmarkTimeout: "120s",
			ReviewTimeout:   "120s",
		},
		Scheduler: *scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("DOIT_DATA_DIR"); dir != "" {
		c.Store.Path = filepath.Join(dir, "doit.db")
		c.Blobs.Root = filepath.Join(dir, "blobs")
	}

	if provider := os.Getenv("DOIT_ORACLE_PROVIDER"); provider != "" {
		c.Oracle.Provider = provider
	}
	// Only the key of the selected provider is picked up.
	switch c.Oracle.Provider {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Oracle.APIKey = key
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Oracle.APIKey = key
		}
		if strings.HasPrefix(c.Oracle.Model, "gemini") {
			c.Oracle.Model = DefaultOpenAIModel
		}
	}

	if key := os.Getenv("YOUTUBE_API_KEY"); key != "" {
		c.Search.YouTubeAPIKey = key
	}
}

// ValidProviders lists all supported oracle providers.
var ValidProviders = []string{"gemini", "openai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.Oracle.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid oracle provider: %s (valid: %v)", c.Oracle.Provider, ValidProviders)
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle model not configured")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Scheduler.GlobalMax <= 0 {
		return fmt.Errorf("scheduler.global_max must be positive, got %d", c.Scheduler.GlobalMax)
	}
	for jobType, limit := range c.Scheduler.ByJobType {
		if !models.JobType(jobType).Valid() {
			return fmt.Errorf("scheduler.by_job_type: unknown job type %q", jobType)
		}
		if limit < 0 {
			return fmt.Errorf("scheduler.by_job_type.%s must not be negative", jobType)
		}
	}
	if c.Scheduler.LeaseTTLSec <= 0 {
		return fmt.Errorf("scheduler.lease_ttl_sec must be positive, got %d", c.Scheduler.LeaseTTLSec)
	}
	return nil
}

// OracleTimeout returns the per-call oracle timeout.
func (c *Config) OracleTimeout() time.Duration {
	return parseDuration(c.Oracle.Timeout, 300*time.Second)
}

// SearchTimeout returns the search API timeout.
func (c *Config) SearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 10*time.Second)
}

// JobTimeouts returns the execution deadline of each job type.
func (c *Config) JobTimeouts() map[models.JobType]time.Duration {
	return map[models.JobType]time.Duration{
		models.JobTypeAnalysis: parseDuration(c.Pipeline.AnalysisTimeout, 540*time.Second),
		models.JobTypeBookmark: parseDuration(c.Pipeline.BookmarkTimeout, 120*time.Second),
		models.JobTypeReview:   parseDuration(c.Pipeline.ReviewTimeout, 120*time.Second),
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
