package generator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"personabot/internal/config"
	"personabot/internal/domain"
)

// Factory creates and caches generator backends from config.
type Factory struct {
	cfg    config.GeneratorConfig
	logger *slog.Logger
	cache  map[string]domain.Generator
	mu     sync.RWMutex
}

func NewFactory(cfg config.GeneratorConfig, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]domain.Generator),
	}
}

// Get returns the backend with the given name, or the configured default when
// name is empty. Created backends are cached so the same instance is reused.
func (f *Factory) Get(name string) (domain.Generator, error) {
	if name == "" {
		name = f.cfg.Default
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Re-check under write lock.
	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown generator backend: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("generator backend %s is disabled", name)
	}

	timeout := time.Duration(f.cfg.TimeoutSeconds) * time.Second
	var g domain.Generator
	switch pc.Type {
	case "openai":
		g = NewOpenAI(OpenAIConfig{
			APIKey:    pc.APIKey,
			APIBase:   pc.APIBase,
			Model:     pc.Model,
			MaxTokens: f.cfg.MaxTokens,
			Timeout:   timeout,
			Logger:    f.logger,
		})
	case "claude":
		g = NewClaude(ClaudeConfig{
			APIKey:    pc.APIKey,
			APIBase:   pc.APIBase,
			Model:     pc.Model,
			MaxTokens: f.cfg.MaxTokens,
			Timeout:   timeout,
			Logger:    f.logger,
		})
	default:
		return nil, fmt.Errorf("generator backend %s: unknown type %q", name, pc.Type)
	}

	f.cache[name] = g
	return g, nil
}

// Build assembles the configured backend, wrapped in a failover chain when
// one is configured.
func (f *Factory) Build() (domain.Generator, error) {
	if len(f.cfg.FailoverChain) == 0 {
		return f.Get("")
	}
	backends := make([]domain.Generator, 0, len(f.cfg.FailoverChain))
	for _, name := range f.cfg.FailoverChain {
		g, err := f.Get(name)
		if err != nil {
			return nil, fmt.Errorf("failover chain: %w", err)
		}
		backends = append(backends, g)
	}
	return NewFailover(backends, f.logger), nil
}
