// Package catalog is the model registry: which provider serves a model, the
// id to send upstream, output-token ceilings, rate limits and prices.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrModelNotFound is returned by Lookup for unknown model names.
var ErrModelNotFound = errors.New("model not found")

//go:embed default.yaml
var defaultCatalog []byte

// Model describes one catalog entry.
type Model struct {
	Name            string  `json:"name" yaml:"name" toml:"name"`
	Provider        string  `json:"provider" yaml:"provider" toml:"provider"`
	ResolveAs       string  `json:"resolve_as" yaml:"resolve_as" toml:"resolve_as"`
	ContextWindow   int     `json:"context_window" yaml:"context_window" toml:"context_window"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens" toml:"max_output_tokens"`
	PriceInput      float64 `json:"price_points_input" yaml:"price_points_input" toml:"price_points_input"`
	PriceOutput     float64 `json:"price_points_output" yaml:"price_points_output" toml:"price_points_output"`
	TPM             int     `json:"tpm,omitempty" yaml:"tpm,omitempty" toml:"tpm,omitempty"`
	RPM             int     `json:"rpm,omitempty" yaml:"rpm,omitempty" toml:"rpm,omitempty"`
}

// ClampMaxTokens limits a requested output budget to the model ceiling. A zero
// request means "as much as the model allows".
func (m Model) ClampMaxTokens(requested int) int {
	if m.MaxOutputTokens <= 0 {
		return requested
	}
	if requested <= 0 || requested > m.MaxOutputTokens {
		return m.MaxOutputTokens
	}
	return requested
}

// Catalog is an immutable set of models keyed by name.
type Catalog struct {
	models map[string]Model
}

type catalogFile struct {
	Models map[string]Model `json:"models" yaml:"models" toml:"models"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. The format is chosen by extension: .json, .yaml,
// .yml or .toml. An empty path returns the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog data in the format named by ext.
func Parse(data []byte, ext string) (*Catalog, error) {
	var file catalogFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, err
		}
	case ".json":
		models, err := parseJSON(data)
		if err != nil {
			return nil, err
		}
		file.Models = models
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}
	return New(file.Models)
}

// parseJSON accepts either {"models": {...}} or the list form
// [{"name": {...}}, ...] used by older model lists.
func parseJSON(data []byte) (map[string]Model, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []map[string]Model
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		out := make(map[string]Model)
		for _, entry := range list {
			for name, m := range entry {
				out[name] = m
			}
		}
		return out, nil
	}
	var file catalogFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, err
	}
	return file.Models, nil
}

// New builds a catalog, filling each model's name from its key and checking
// required fields.
func New(models map[string]Model) (*Catalog, error) {
	c := &Catalog{models: make(map[string]Model, len(models))}
	for name, m := range models {
		m.Name = name
		if m.Provider == "" {
			return nil, fmt.Errorf("model %s: provider is required", name)
		}
		if m.ResolveAs == "" {
			m.ResolveAs = name
		}
		c.models[name] = m
	}
	return c, nil
}

// Lookup returns the model with the given name.
func (c *Catalog) Lookup(name string) (Model, error) {
	m, ok := c.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return m, nil
}

// Models returns every model sorted by name.
func (c *Catalog) Models() []Model {
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of models.
func (c *Catalog) Len() int {
	return len(c.models)
}

// Available returns the subset of models whose provider is usable. Skipped
// models are logged with the reason.
func (c *Catalog) Available(hasProvider func(string) bool, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	out := &Catalog{models: make(map[string]Model)}
	for _, m := range c.Models() {
		if !hasProvider(m.Provider) {
			logger.Error("model provider not available, skipping",
				"model", m.Name,
				"provider", m.Provider)
			continue
		}
		out.models[m.Name] = m
	}
	return out
}
