package bus

import (
	"log/slog"
	"sync"

	"personabot/internal/domain"
)

// IntentBus delivers side-effect intents from the orchestrator to their
// consumers (CRM sync, staff notifier, history store). Delivery is
// synchronous and in registration order, so a turn's side effects are fully
// applied before the turn completes.
type IntentBus struct {
	handlers map[domain.IntentKind][]func(domain.Intent)
	mu       sync.RWMutex
	logger   *slog.Logger
}

// New creates an empty intent bus.
func New(logger *slog.Logger) *IntentBus {
	return &IntentBus{
		handlers: make(map[domain.IntentKind][]func(domain.Intent)),
		logger:   logger,
	}
}

// Subscribe registers a consumer for one intent kind. Not safe to call
// concurrently with Publish for the same kind during startup wiring; wire
// consumers before serving traffic.
func (b *IntentBus) Subscribe(kind domain.IntentKind, handler func(domain.Intent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish delivers an intent to every consumer registered for its kind.
func (b *IntentBus) Publish(intent domain.Intent) {
	b.mu.RLock()
	handlers := b.handlers[intent.IntentKind()]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Warn("no consumer registered for intent",
			"kind", intent.IntentKind(),
			"customer", intent.IntentCustomer(),
		)
		return
	}

	for _, h := range handlers {
		h(intent)
	}
}
