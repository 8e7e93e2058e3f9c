package domain

import (
	"context"
	"errors"
)

// Generation outcomes the orchestrator distinguishes. The adapter normalizes
// every backend failure into one of these; raw transport errors never reach
// the user.
var (
	// ErrGenerationUnavailable means the backend was unreachable, timed out,
	// or returned a malformed response. Recoverable: the orchestrator retries
	// once, then falls back to an apology reply.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrGenerationRejected means the backend declined to answer (content
	// policy). Not retried; forces a handoff.
	ErrGenerationRejected = errors.New("generation rejected")
)

// ErrOutOfOrderTurn is returned when the transport delivers a message whose
// timestamp precedes the customer's last recorded turn. The engine rejects it
// rather than reordering.
var ErrOutOfOrderTurn = errors.New("out-of-order turn")

// ContextBundle is the ephemeral per-turn input to the generator: a customer
// snapshot, the ranked knowledge selection, and a bounded window of recent
// turns (oldest first). Never persisted.
type ContextBundle struct {
	Customer  *Customer
	Knowledge []KnowledgeItem
	Window    []Turn
	// Inbound is the message being answered; it is not yet part of Window.
	Inbound string
}

// GenMessage is one chat-shaped message sent to the generative backend.
type GenMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Generator produces a reply for an assembled context bundle. Implementations
// must honor ctx cancellation and return the sentinel errors above for
// backend failures; they perform no retries themselves.
type Generator interface {
	Generate(ctx context.Context, messages []GenMessage) (string, error)
	Name() string
	Healthy(ctx context.Context) error
}
