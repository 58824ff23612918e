// Package svcctx builds the shared services a command needs and carries them
// through context.
package svcctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackzampolin/folio/internal/catalog"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/prompts"
	"github.com/jackzampolin/folio/internal/prompts/extraction"
	"github.com/jackzampolin/folio/internal/prompts/summary"
	"github.com/jackzampolin/folio/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config   *config.Manager
	Home     *home.Dir
	Catalog  *catalog.Catalog
	Registry *providers.Registry
	Router   *providers.Router
	Prompts  *prompts.Resolver
	Logger   *slog.Logger
}

// Options selects where configuration and state live.
type Options struct {
	ConfigFile string
	HomeDir    string
	Debug      bool
}

// Load builds Services from config. The home directory comes from the
// option, then the config's home key, then ~/.folio.
func Load(opts Options) (*Services, error) {
	h, err := home.New(opts.HomeDir)
	if err != nil {
		return nil, err
	}
	cm, err := config.NewManager(opts.ConfigFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()
	if opts.HomeDir == "" && cfg.Home != "" {
		if h, err = home.New(cfg.Home); err != nil {
			return nil, err
		}
	}

	logger := NewLogger(opts.Debug || cfg.Debug)
	cm.SetLogger(logger)

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.Reload(cfg.ToProviderRegistryConfig())

	resolver := prompts.NewResolver(logger)
	extraction.RegisterPrompts(resolver)
	summary.RegisterPrompts(resolver)
	if err := resolver.LoadOverrides(cfg.PromptsFile); err != nil {
		return nil, err
	}

	s := &Services{
		Config:   cm,
		Home:     h,
		Catalog:  cat,
		Registry: registry,
		Router:   providers.NewRouter(cat, registry, logger),
		Prompts:  resolver,
		Logger:   logger,
	}

	cm.OnChange(func(cfg *config.Config) {
		registry.Reload(cfg.ToProviderRegistryConfig())
		if err := resolver.LoadOverrides(cfg.PromptsFile); err != nil {
			logger.Warn("failed to reload prompt overrides", "error", err)
		}
	})
	return s, nil
}

// NewLogger returns the text logger every command writes to stderr.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Available returns the catalog models whose provider is registered.
func (s *Services) Available() *catalog.Catalog {
	return s.Catalog.Available(s.Registry.Has, s.Logger)
}

// CheckModels fails when a configured model is unknown or has no usable
// provider.
func (s *Services) CheckModels() error {
	cfg := s.Config.Get()
	available := s.Available()
	for _, name := range []string{cfg.Extraction.Model, cfg.Summary.Model, cfg.Summary.FallbackModel} {
		if name == "" {
			continue
		}
		if _, err := s.Catalog.Lookup(name); err != nil {
			return err
		}
		if _, err := available.Lookup(name); err != nil {
			return fmt.Errorf("model %s has no usable provider: %w", name, err)
		}
	}
	return nil
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
