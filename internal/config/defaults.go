package config

import (
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/spf13/viper"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is a single configuration key with its default value.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the default configuration entries in the order they
// are written by WriteDefault.
func DefaultEntries() []Entry {
	return []Entry{
		{Key: "watch_dir", Value: "", Description: "Directory watched for new PDF documents"},
		{Key: "home", Value: "", Description: "Home directory for logs and artifacts (default ~/.folio)"},
		{Key: "catalog_file", Value: "", Description: "Model catalog file (.json, .yaml, .toml); empty uses the embedded catalog"},
		{Key: "prompts_file", Value: "", Description: "YAML file overriding prompts by key"},
		{Key: "debug", Value: false, Description: "Enable debug logging"},

		// ===================
		// Providers
		// ===================

		// OpenRouter
		{
			Key:         "providers.openrouter.type",
			Value:       "openrouter",
			Description: "Provider type for OpenRouter",
		},
		{
			Key:         "providers.openrouter.api_key",
			Value:       "${OPENROUTER_API_KEY}",
			Description: "OpenRouter API key (uses environment variable)",
		},
		{
			Key:         "providers.openrouter.base_url",
			Value:       "",
			Description: "Override the OpenRouter endpoint",
		},
		{
			Key:         "providers.openrouter.timeout",
			Value:       5 * time.Minute,
			Description: "HTTP timeout for OpenRouter requests",
		},
		{
			Key:         "providers.openrouter.max_retries",
			Value:       7,
			Description: "Maximum retry attempts for failed OpenRouter requests",
		},
		{
			Key:         "providers.openrouter.enabled",
			Value:       true,
			Description: "Whether the OpenRouter provider is enabled",
		},

		// OpenAI
		{
			Key:         "providers.openai.type",
			Value:       "openai",
			Description: "Provider type for OpenAI",
		},
		{
			Key:         "providers.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.openai.base_url",
			Value:       "",
			Description: "Override the OpenAI endpoint (any OpenAI-compatible server)",
		},
		{
			Key:         "providers.openai.timeout",
			Value:       5 * time.Minute,
			Description: "HTTP timeout for OpenAI requests",
		},
		{
			Key:         "providers.openai.max_retries",
			Value:       3,
			Description: "Maximum retry attempts for failed OpenAI requests",
		},
		{
			Key:         "providers.openai.enabled",
			Value:       true,
			Description: "Whether the OpenAI provider is enabled",
		},

		// ===================
		// Pipeline
		// ===================
		{Key: "pipeline.batch_size", Value: 8, Description: "Tickets dispatched concurrently per batch"},
		{Key: "pipeline.idle_timeout", Value: time.Second, Description: "How long the engine waits for work before checking for shutdown"},

		// ===================
		// Extraction (phase 1)
		// ===================
		{Key: "extraction.model", Value: "gemini-2.0-flash", Description: "Catalog model used to extract sections and parts"},
		{Key: "extraction.samples", Value: 8, Description: "Completions sampled per page for the consensus vote"},
		{Key: "extraction.temperature", Value: 0.6, Description: "Sampling temperature for extraction"},
		{Key: "extraction.top_p", Value: 0.0, Description: "Nucleus sampling for extraction (0 leaves it unset)"},
		{Key: "extraction.max_tokens", Value: 8192, Description: "Output token budget per extraction request"},
		{Key: "extraction.pages_before", Value: 0, Description: "Preceding pages sent as context"},
		{Key: "extraction.pages_after", Value: 0, Description: "Following pages sent as context"},
		{Key: "extraction.max_attempts", Value: 10, Description: "Attempts per page before the document fails"},

		// ===================
		// Summary (phase 2)
		// ===================
		{Key: "summary.model", Value: "gemini-2.0-flash", Description: "Catalog model used to summarise sections"},
		{Key: "summary.fallback_model", Value: "gemini-2.5-pro", Description: "Model used after the first malformed summary"},
		{Key: "summary.temperature", Value: 0.2, Description: "Sampling temperature for summaries"},
		{Key: "summary.top_p", Value: 0.0, Description: "Nucleus sampling for summaries (0 leaves it unset)"},
		{Key: "summary.max_tokens", Value: 8192, Description: "Output token budget per summary request"},
		{Key: "summary.max_attempts", Value: 6, Description: "Attempts per section before the document fails"},

		// ===================
		// Reports
		// ===================
		{Key: "report.auto", Value: true, Description: "Rebuild reports after every completed document"},
		{Key: "report.xlsx", Value: true, Description: "Also write report.xlsx"},
	}
}

// SetDefaults seeds every default entry into v.
func SetDefaults(v *viper.Viper) {
	for _, e := range DefaultEntries() {
		v.SetDefault(e.Key, e.Value)
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// LookupDefault is GetDefault with an error for unknown keys.
func LookupDefault(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if e := GetDefault(key); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%w for key %q", ErrNoDefault, key)
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	// Don't allow keys starting or ending with dots
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// DefaultConfig returns configuration with every default applied.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}
