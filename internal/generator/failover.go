package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"personabot/internal/domain"
)

// Failover tries each backend in order until one answers. A rejection stops
// the chain immediately: a second backend must not answer what the first
// declined on policy grounds.
type Failover struct {
	backends []domain.Generator
	logger   *slog.Logger
}

func NewFailover(backends []domain.Generator, logger *slog.Logger) *Failover {
	return &Failover{backends: backends, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	for _, b := range f.backends {
		if err := b.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy backend in failover chain")
}

func (f *Failover) Generate(ctx context.Context, messages []domain.GenMessage) (string, error) {
	var lastErr error
	for i, b := range f.backends {
		text, err := b.Generate(ctx, messages)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback backend",
					"backend", b.Name(), "attempt", i+1)
			}
			return text, nil
		}
		if errors.Is(err, domain.ErrGenerationRejected) {
			return "", err
		}
		lastErr = err
		f.logger.Warn("failover: backend failed, trying next",
			"backend", b.Name(), "attempt", i+1, "error", err)
	}
	if lastErr == nil {
		lastErr = domain.ErrGenerationUnavailable
	}
	return "", fmt.Errorf("all backends failed: %w", lastErr)
}
