package config

import (
	"fmt"
	"time"
)

// Config holds folio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	WatchDir    string                 `mapstructure:"watch_dir" yaml:"watch_dir"`
	Home        string                 `mapstructure:"home" yaml:"home"`
	CatalogFile string                 `mapstructure:"catalog_file" yaml:"catalog_file"` // empty: embedded catalog
	PromptsFile string                 `mapstructure:"prompts_file" yaml:"prompts_file"` // empty: embedded prompts
	Debug       bool                   `mapstructure:"debug" yaml:"debug"`
	Providers   map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Pipeline    PipelineCfg            `mapstructure:"pipeline" yaml:"pipeline"`
	Extraction  ExtractionCfg          `mapstructure:"extraction" yaml:"extraction"`
	Summary     SummaryCfg             `mapstructure:"summary" yaml:"summary"`
	Report      ReportCfg              `mapstructure:"report" yaml:"report"`
}

// ProviderCfg configures a chat completion provider.
type ProviderCfg struct {
	Type       string        `mapstructure:"type" yaml:"type"`       // "openrouter", "openai"
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
}

// PipelineCfg tunes the dispatch engine.
type PipelineCfg struct {
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// ExtractionCfg tunes phase 1.
type ExtractionCfg struct {
	Model       string  `mapstructure:"model" yaml:"model"`
	Samples     int     `mapstructure:"samples" yaml:"samples"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	PagesBefore int     `mapstructure:"pages_before" yaml:"pages_before"`
	PagesAfter  int     `mapstructure:"pages_after" yaml:"pages_after"`
	MaxAttempts int     `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// SummaryCfg tunes phase 2.
type SummaryCfg struct {
	Model         string  `mapstructure:"model" yaml:"model"`
	FallbackModel string  `mapstructure:"fallback_model" yaml:"fallback_model"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP          float64 `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxAttempts   int     `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ReportCfg controls report generation.
type ReportCfg struct {
	Auto bool `mapstructure:"auto" yaml:"auto"` // rebuild after every completed document
	XLSX bool `mapstructure:"xlsx" yaml:"xlsx"`
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	switch {
	case c.Extraction.Model == "":
		return fmt.Errorf("extraction.model is required")
	case c.Summary.Model == "":
		return fmt.Errorf("summary.model is required")
	case c.Extraction.Samples < 1:
		return fmt.Errorf("extraction.samples must be at least 1, got %d", c.Extraction.Samples)
	case c.Extraction.PagesBefore < 0 || c.Extraction.PagesAfter < 0:
		return fmt.Errorf("extraction.pages_before and pages_after must not be negative")
	case c.Extraction.MaxAttempts < 1:
		return fmt.Errorf("extraction.max_attempts must be at least 1, got %d", c.Extraction.MaxAttempts)
	case c.Summary.MaxAttempts < 1:
		return fmt.Errorf("summary.max_attempts must be at least 1, got %d", c.Summary.MaxAttempts)
	case c.Pipeline.BatchSize < 1:
		return fmt.Errorf("pipeline.batch_size must be at least 1, got %d", c.Pipeline.BatchSize)
	}
	return nil
}
