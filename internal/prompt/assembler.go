// Package prompt assembles the ephemeral generation context for one turn and
// renders it into chat-shaped messages. Assembly is pure: the same inputs
// always yield the same bundle.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"personabot/internal/domain"
)

// DefaultWindow bounds how many recent turns ride along in the context.
const DefaultWindow = 10

const systemPreamble = `You are a friendly coaching consultant for an online program that teaches people to build an income through social media. Answer warmly and concretely, in the customer's language. Ground your answers in the reference material when it is provided; when you are unsure, say so and suggest the free individual consultation instead of guessing. Never invent prices, guarantees, or results.`

// Assembler builds context bundles with a configured window size.
type Assembler struct {
	window int
}

func NewAssembler(window int) *Assembler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Assembler{window: window}
}

// Assemble snapshots the inputs into a bundle. The history slice must already
// be in arrival order; only the trailing window is kept. An empty knowledge
// selection is a valid bundle.
func (a *Assembler) Assemble(c *domain.Customer, history []domain.Turn,
	items []domain.KnowledgeItem, inbound string) domain.ContextBundle {

	if len(history) > a.window {
		history = history[len(history)-a.window:]
	}
	window := make([]domain.Turn, len(history))
	copy(window, history)

	knowledge := make([]domain.KnowledgeItem, len(items))
	copy(knowledge, items)

	return domain.ContextBundle{
		Customer:  c.Clone(),
		Knowledge: knowledge,
		Window:    window,
		Inbound:   inbound,
	}
}

// Render flattens a bundle into the message list sent to the generator:
// one system message carrying the preamble, customer facts, and ranked
// knowledge, then the window turns oldest first, then the inbound message.
func Render(b domain.ContextBundle) []domain.GenMessage {
	var sys strings.Builder
	sys.WriteString(systemPreamble)

	sys.WriteString("\n\n## Customer\n")
	fmt.Fprintf(&sys, "This customer %s.\n", b.Customer.Persona.Description())
	if len(b.Customer.Attributes) > 0 {
		keys := make([]string, 0, len(b.Customer.Attributes))
		for k := range b.Customer.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sys, "- %s: %s\n", k, b.Customer.Attributes[k])
		}
	}

	if len(b.Knowledge) > 0 {
		sys.WriteString("\n## Reference material (most relevant first)\n")
		for i, item := range b.Knowledge {
			fmt.Fprintf(&sys, "\n[%d] %s\n%s\n", i+1, item.Kind(), item.Body())
		}
	}

	msgs := make([]domain.GenMessage, 0, len(b.Window)+2)
	msgs = append(msgs, domain.GenMessage{Role: "system", Content: sys.String()})
	for _, t := range b.Window {
		role := "user"
		if t.Speaker != domain.SpeakerCustomer {
			role = "assistant"
		}
		msgs = append(msgs, domain.GenMessage{Role: role, Content: t.Text})
	}
	msgs = append(msgs, domain.GenMessage{Role: "user", Content: b.Inbound})
	return msgs
}

// WelcomeMessage is the greeting sent when a customer first follows or
// registers. It is static so the first contact never depends on the
// generation backend.
func WelcomeMessage(displayName string) string {
	greeting := "Hi"
	if displayName != "" {
		greeting = "Hi " + displayName
	}
	return greeting + ", thanks for adding us! " +
		"Feel free to tell me a bit about your situation and what you'd like to achieve. " +
		"I can share real student stories, answer questions about the program, " +
		"and help you book a free individual consultation whenever you're ready."
}

// FallbackReply is sent when generation is unavailable after the retry.
const FallbackReply = "Sorry, I'm having trouble answering right now. " +
	"Please try again in a moment, and if it keeps happening our staff will follow up with you directly."

// HandoffReply acknowledges the customer while staff take over.
const HandoffReply = "Thank you for your message. " +
	"One of our staff will get back to you personally as soon as possible."
