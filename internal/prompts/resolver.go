package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// legacyKeys maps the flat key names used by older prompt files to the
// hierarchical keys used here.
var legacyKeys = map[string]string{
	"SP_markdown_sections_and_parts":   "extraction.system",
	"USER_markdown_sections_and_parts": "extraction.user",
	"SP_summarize_section_and_parts":   "summary.system",
	"USER_summarize_section_and_parts": "summary.user",
}

// legacyPlaceholders rewrites placeholder tokens from older prompt files into
// template actions.
var legacyPlaceholders = strings.NewReplacer("$PAGE_N$", "{{.PageNumber}}")

// Resolver resolves prompts with file-level overrides.
// Resolution order: override file > embedded default
type Resolver struct {
	mu           sync.RWMutex
	embedded     map[string]EmbeddedPrompt
	overrides    map[string]string
	overridePath string
	logger       *slog.Logger
}

// NewResolver creates a new prompt resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		embedded:  make(map[string]EmbeddedPrompt),
		overrides: make(map[string]string),
		logger:    logger,
	}
}

// Register registers an embedded prompt.
// This should be called during initialization by each prompt package.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// LoadOverrides reads a YAML mapping of prompt key to text. Legacy flat key
// names are accepted. An empty path clears the overrides.
func (r *Resolver) LoadOverrides(path string) error {
	if path == "" {
		r.mu.Lock()
		r.overrides = make(map[string]string)
		r.overridePath = ""
		r.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	overrides := make(map[string]string, len(raw))
	for key, text := range raw {
		if mapped, ok := legacyKeys[key]; ok {
			key = mapped
			text = legacyPlaceholders.Replace(text)
		}
		if _, ok := r.embedded[key]; !ok {
			r.logger.Warn("prompt override for unknown key, ignoring", "key", key, "path", path)
			continue
		}
		overrides[key] = text
	}
	r.overrides = overrides
	r.overridePath = path
	r.logger.Info("loaded prompt overrides", "path", path, "count", len(overrides))
	return nil
}

// Resolve returns the override for key if one exists, otherwise the
// embedded default.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	embedded, ok := r.embedded[key]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}
	if text, ok := r.overrides[key]; ok {
		return &ResolvedPrompt{
			Key:         key,
			Text:        text,
			Description: embedded.Description,
			Variables:   ExtractVariables(text),
			Hash:        HashText(text),
			IsOverride:  true,
			Source:      r.overridePath,
		}, nil
	}
	return &ResolvedPrompt{
		Key:         key,
		Text:        embedded.Text,
		Description: embedded.Description,
		Variables:   embedded.Variables,
		Hash:        embedded.Hash,
		Source:      "embedded",
	}, nil
}

// Render resolves key and executes it as a template with data.
func (r *Resolver) Render(key string, data any) (string, error) {
	p, err := r.Resolve(key)
	if err != nil {
		return "", err
	}
	return Execute(key, p.Text, data)
}

// All resolves every registered prompt, sorted by key.
func (r *Resolver) All() []ResolvedPrompt {
	r.mu.RLock()
	keys := make([]string, 0, len(r.embedded))
	for k := range r.embedded {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)

	out := make([]ResolvedPrompt, 0, len(keys))
	for _, k := range keys {
		if p, err := r.Resolve(k); err == nil {
			out = append(out, *p)
		}
	}
	return out
}
