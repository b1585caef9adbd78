// Package config implements ConfigService: merges defaults with environment
// variables and optional YAML overrides, and exposes model-per-operation
// selection, per-source timeouts, and feature flags. Config misses fail
// loudly at Load() time, never lazily at first use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration validation failure. Callers can
// distinguish "engine never started" from "engine started and failed" by
// checking errors.Is(err, config.ErrInvalid) against the error Load returns.
var ErrInvalid = errors.New("config: invalid configuration")

// LLMConfig selects models and fallbacks per engine operation.
type LLMConfig struct {
	DefaultModel        string            `yaml:"default_model"`
	PerOperationModel   map[string]string `yaml:"per_operation_model"`
	FallbackModels      []string          `yaml:"fallback_models"`
	TemperaturePerOp    map[string]float64 `yaml:"temperature_per_operation"`
	APIKeyEnv           string            `yaml:"api_key_env"`
	BaseURL             string            `yaml:"base_url"`
	RequestTimeout      time.Duration     `yaml:"request_timeout"`
	MaxRetries          int               `yaml:"max_retries"`
}

// ExecutionConfig holds the engine's concurrency and budget knobs.
type ExecutionConfig struct {
	MaxConcurrentTotal    int           `yaml:"max_concurrent_total"`
	MaxConcurrentPerSource int          `yaml:"max_concurrent_per_source"`
	MaxRefinements        int           `yaml:"max_refinements"`
	DefaultResultLimit    int           `yaml:"default_result_limit"`
	MaxTasks              int           `yaml:"max_tasks"`
	MaxRetriesPerTask     int           `yaml:"max_retries_per_task"`
	MaxTimeMinutes        int           `yaml:"max_time_minutes"`
}

// TimeoutsConfig holds per-category request timeouts.
type TimeoutsConfig struct {
	APIRequest   time.Duration `yaml:"api_request"`
	LLMRequest   time.Duration `yaml:"llm_request"`
	TotalSearch  time.Duration `yaml:"total_search"`
}

// SourceConfig is per-integration configuration, keyed by integration id.
type SourceConfig struct {
	Enabled               bool          `yaml:"enabled"`
	Timeout               time.Duration `yaml:"timeout"`
	DefaultDateRangeDays   int          `yaml:"default_date_range_days"`
	Origin                string        `yaml:"origin"`
	CredentialEnvName     string        `yaml:"credential_env_name"`
	MaxConcurrent         int           `yaml:"max_concurrent"`
}

// CostConfig bounds LLM spend for a run.
type CostConfig struct {
	MaxCostPerRun float64 `yaml:"max_cost_per_run"`
	WarnRatio     float64 `yaml:"warn_ratio"`
}

// EngineConfig holds the DeepResearchEngine's feature flags and open-question
// decisions (SPEC_FULL.md §9).
type EngineConfig struct {
	RelevanceThresholdPublic     int  `yaml:"relevance_threshold_public"`
	RelevanceThresholdSensitive  int  `yaml:"relevance_threshold_sensitive"`
	ExtractEntitiesPerSubtask    bool `yaml:"extract_entities_per_subtask"`
	RichEntities                 bool `yaml:"rich_entities"`
	FollowupsAllowBrowserScraper bool `yaml:"followups_allow_browser_scraper"`
	EntitySampleSize             int  `yaml:"entity_sample_size"`
}

// TelemetryConfig controls whether OpenTelemetry is wired up and where it
// exports to.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// RegistryConfig controls the optional cross-replica status mirror.
type RegistryConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// Config is the fully merged configuration for one engine process.
type Config struct {
	OutputRoot string           `yaml:"output_root"`
	LogLevel   string           `yaml:"log_level"`
	LLM        LLMConfig        `yaml:"llm"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Sources    map[string]SourceConfig `yaml:"sources"`
	Cost       CostConfig       `yaml:"cost"`
	Engine     EngineConfig     `yaml:"engine"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Registry   RegistryConfig   `yaml:"registry"`
}

// Default returns the baseline configuration before env/file overrides are
// applied.
func Default() *Config {
	return &Config{
		OutputRoot: "./runs",
		LogLevel:   "info",
		LLM: LLMConfig{
			DefaultModel:   "gpt-4o",
			APIKeyEnv:      "RESEARCH_LLM_API_KEY",
			RequestTimeout: 60 * time.Second,
			MaxRetries:     2,
			PerOperationModel: map[string]string{
				"decomposition":     "gpt-4o",
				"query_generation":  "gpt-4o-mini",
				"relevance":         "gpt-4o-mini",
				"entity_extraction": "gpt-4o-mini",
				"synthesis":         "gpt-4o",
				"source_selection":  "gpt-4o-mini",
				"reformulation":     "gpt-4o-mini",
			},
			FallbackModels: []string{"gpt-4o-mini"},
		},
		Execution: ExecutionConfig{
			MaxConcurrentTotal:     8,
			MaxConcurrentPerSource: 2,
			MaxRefinements:         2,
			DefaultResultLimit:     25,
			MaxTasks:               12,
			MaxRetriesPerTask:      2,
			MaxTimeMinutes:         15,
		},
		Timeouts: TimeoutsConfig{
			APIRequest:  20 * time.Second,
			LLMRequest:  60 * time.Second,
			TotalSearch: 10 * time.Minute,
		},
		Sources: map[string]SourceConfig{
			"gov-contracts":  {Enabled: true, Timeout: 20 * time.Second, DefaultDateRangeDays: 365, CredentialEnvName: "CONTRACTS_API_KEY"},
			"federal-jobs":   {Enabled: true, Timeout: 15 * time.Second, DefaultDateRangeDays: 60, CredentialEnvName: "USAJOBS_API_KEY"},
			"gov-media":      {Enabled: true, Timeout: 20 * time.Second, DefaultDateRangeDays: 180, MaxConcurrent: 1, CredentialEnvName: "DVIDS_API_KEY"},
			"federal-register": {Enabled: true, Timeout: 15 * time.Second, DefaultDateRangeDays: 365},
			"web-search":     {Enabled: true, Timeout: 15 * time.Second, DefaultDateRangeDays: 365, CredentialEnvName: "SEARCH_API_KEY"},
			"social-twlike":  {Enabled: true, Timeout: 15 * time.Second, DefaultDateRangeDays: 180, CredentialEnvName: "SOCIAL_BEARER_TOKEN"},
			"local-archive":  {Enabled: true, Timeout: 5 * time.Second, DefaultDateRangeDays: 0, Origin: "./data/archives"},
			"browser-scraper": {Enabled: false, Timeout: 30 * time.Second, DefaultDateRangeDays: 0},
		},
		Cost: CostConfig{
			MaxCostPerRun: 2.00,
			WarnRatio:     0.8,
		},
		Engine: EngineConfig{
			RelevanceThresholdPublic:     3,
			RelevanceThresholdSensitive:  1,
			ExtractEntitiesPerSubtask:    false,
			RichEntities:                 false,
			FollowupsAllowBrowserScraper: false,
			EntitySampleSize:             40,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			SamplingRate: 1.0,
		},
	}
}

// Overrides is a sparse set of values a caller may supply to Load, taking
// priority over environment variables (spec.md §4.8's three-layer merge:
// defaults < environment < caller overrides).
type Overrides struct {
	MaxTasks       *int
	MaxTimeMinutes *int
	MaxCostUSD     *float64
	RelevancePublic *int
	RelevanceSensitive *int
}

// Load builds a Config from defaults, then a YAML file (if path is
// non-empty), then environment variables, then overrides, and validates the
// result. Any problem fails loudly: validation failures wrap ErrInvalid, and
// an unreadable or unparseable file is returned as a wrapped error — callers
// must not defer validation to first use.
func Load(path string, overrides *Overrides) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyOverrides(cfg, overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RESEARCH_OUTPUT_ROOT"); v != "" {
		cfg.OutputRoot = v
	}
	if v := os.Getenv("RESEARCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RESEARCH_LLM_DEFAULT_MODEL"); v != "" {
		cfg.LLM.DefaultModel = v
	}
	if v := os.Getenv("RESEARCH_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("RESEARCH_MAX_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Execution.MaxTasks = n
		}
	}
	if v := os.Getenv("RESEARCH_MAX_TIME_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Execution.MaxTimeMinutes = n
		}
	}
	if v := os.Getenv("RESEARCH_MAX_COST_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cost.MaxCostPerRun = f
		}
	}
	if v := os.Getenv("RESEARCH_TELEMETRY_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
	if v := os.Getenv("RESEARCH_REGISTRY_REDIS_URL"); v != "" {
		cfg.Registry.RedisURL = v
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.MaxTasks != nil {
		cfg.Execution.MaxTasks = *o.MaxTasks
	}
	if o.MaxTimeMinutes != nil {
		cfg.Execution.MaxTimeMinutes = *o.MaxTimeMinutes
	}
	if o.MaxCostUSD != nil {
		cfg.Cost.MaxCostPerRun = *o.MaxCostUSD
	}
	if o.RelevancePublic != nil {
		cfg.Engine.RelevanceThresholdPublic = *o.RelevancePublic
	}
	if o.RelevanceSensitive != nil {
		cfg.Engine.RelevanceThresholdSensitive = *o.RelevanceSensitive
	}
}

// Validate checks invariants that must hold before a run starts.
func (c *Config) Validate() error {
	if c.Execution.MaxConcurrentTotal <= 0 {
		return fmt.Errorf("%w: execution.max_concurrent_total must be positive", ErrInvalid)
	}
	if c.Execution.MaxConcurrentPerSource <= 0 {
		return fmt.Errorf("%w: execution.max_concurrent_per_source must be positive", ErrInvalid)
	}
	if c.Execution.MaxTasks <= 0 {
		return fmt.Errorf("%w: execution.max_tasks must be positive", ErrInvalid)
	}
	if c.Execution.MaxTimeMinutes <= 0 {
		return fmt.Errorf("%w: execution.max_time_minutes must be positive", ErrInvalid)
	}
	if c.Engine.RelevanceThresholdSensitive > c.Engine.RelevanceThresholdPublic {
		return fmt.Errorf("%w: engine.relevance_threshold_sensitive must be <= relevance_threshold_public", ErrInvalid)
	}
	if c.Cost.MaxCostPerRun <= 0 {
		return fmt.Errorf("%w: cost.max_cost_per_run must be positive", ErrInvalid)
	}
	for id, sc := range c.Sources {
		if sc.Enabled && sc.Timeout <= 0 {
			return fmt.Errorf("%w: sources.%s.timeout must be positive when enabled", ErrInvalid, id)
		}
	}
	return nil
}

// CredentialFor returns the value of the environment variable named by the
// source's CredentialEnvName (the default social-twlike entry names a generic
// bearer-token variable), or "" when the source is unknown or names none.
func (c *Config) CredentialFor(sourceID string) string {
	sc, ok := c.Sources[sourceID]
	if ok && sc.CredentialEnvName != "" {
		return os.Getenv(sc.CredentialEnvName)
	}
	return ""
}
