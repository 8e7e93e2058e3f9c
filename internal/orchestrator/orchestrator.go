// Package orchestrator runs the per-turn conversation state machine: ordering
// checks, escalation, persona classification, knowledge retrieval, context
// assembly, generation, and intent emission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"personabot/internal/domain"
	"personabot/internal/escalation"
	"personabot/internal/generator"
	"personabot/internal/metrics"
	"personabot/internal/persona"
	"personabot/internal/prompt"
)

// KnowledgeSearcher is the retrieval surface the orchestrator needs.
type KnowledgeSearcher interface {
	Query(p domain.Persona, freeText string, topK int) []domain.KnowledgeItem
}

// AssistGate reports whether staff have taken a customer over manually.
type AssistGate interface {
	InAssistMode(ctx context.Context, customerID string) bool
}

// ProfileEnricher pulls profile data the CRM already holds for a customer
// into a freshly created local profile. Gates that also talk to a CRM
// implement it; the orchestrator discovers it on the assist gate.
type ProfileEnricher interface {
	EnrichCustomer(ctx context.Context, c *domain.Customer) bool
}

// Config carries the tunables; zero values fall back to sensible defaults.
type Config struct {
	PersonaWindow int
	TopK          int
	RetryBackoff  time.Duration
}

// Orchestrator coordinates one reply per inbound message. Turns for the same
// customer are processed strictly one at a time; different customers proceed
// in parallel.
type Orchestrator struct {
	store      domain.Store
	knowledge  KnowledgeSearcher
	classifier *persona.Classifier
	policy     *escalation.Policy
	assembler  *prompt.Assembler
	gen        domain.Generator
	bus        domain.IntentBus
	assist     AssistGate // may be nil
	logger     *slog.Logger
	cfg        Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store domain.Store, ks KnowledgeSearcher, cl *persona.Classifier,
	pol *escalation.Policy, asm *prompt.Assembler, gen domain.Generator,
	bus domain.IntentBus, assist AssistGate, cfg Config, logger *slog.Logger) *Orchestrator {

	if cfg.PersonaWindow <= 0 {
		cfg.PersonaWindow = 5
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Orchestrator{
		store:      store,
		knowledge:  ks,
		classifier: cl,
		policy:     pol,
		assembler:  asm,
		gen:        gen,
		bus:        bus,
		assist:     assist,
		logger:     logger,
		cfg:        cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockCustomer returns the serialization mutex for one customer. Mutexes are
// created on demand and kept for the process lifetime.
func (o *Orchestrator) lockCustomer(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

// HandleMessage processes one inbound message and returns the reply to send.
// An empty reply text means the transport should stay silent.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg domain.InboundMessage) (domain.Reply, error) {
	l := o.lockCustomer(msg.CustomerID)
	l.Lock()
	defer l.Unlock()

	metrics.ActiveCustomers.Inc()
	defer metrics.ActiveCustomers.Dec()

	customer, err := o.store.GetCustomer(ctx, msg.CustomerID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		customer = domain.NewCustomer(msg.CustomerID)
	}

	// Reject stale deliveries instead of reordering.
	last, err := o.store.LastTurn(ctx, msg.CustomerID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("last turn: %w", err)
	}
	if last != nil && !msg.Timestamp.IsZero() && msg.Timestamp.Before(last.Timestamp) {
		metrics.RejectedTotal.Inc()
		o.logger.Warn("out-of-order message rejected",
			"customer", msg.CustomerID, "ts", msg.Timestamp, "last", last.Timestamp)
		return domain.Reply{}, domain.ErrOutOfOrderTurn
	}

	metrics.TurnsTotal.Inc()
	o.appendTurn(msg.CustomerID, domain.Turn{
		Speaker: domain.SpeakerCustomer, Text: msg.Text, Timestamp: msg.Timestamp,
	})

	// Staff assist mode: persist the profile, log the turn, say nothing.
	if o.assist != nil && o.assist.InAssistMode(ctx, msg.CustomerID) {
		metrics.RejectedTotal.Inc()
		if err := o.store.SaveCustomer(ctx, customer); err != nil {
			return domain.Reply{}, fmt.Errorf("save customer: %w", err)
		}
		o.logger.Info("assist mode active, staying silent", "customer", msg.CustomerID)
		return domain.Reply{Outcome: domain.OutcomeHandoff}, nil
	}

	// An already handed-off conversation never re-enters generation.
	if customer.HandoffFlag {
		return o.reply(ctx, customer, prompt.HandoffReply, domain.OutcomeHandoff)
	}

	turnCount, err := o.store.CountTurns(ctx, msg.CustomerID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("count turns: %w", err)
	}
	if ok, reason := o.policy.ShouldHandoff(msg.Text, escalation.State{
		TurnCount:        turnCount,
		PersonaConverged: customer.Persona != domain.PersonaUnclassified,
		UnansweredCount:  customer.UnansweredCount,
	}); ok {
		return o.handoff(ctx, customer, reason, msg.Text)
	}

	o.classify(ctx, customer, msg.Text)

	retrieveStart := time.Now()
	items := o.knowledge.Query(customer.Persona, msg.Text, o.cfg.TopK)
	metrics.RetrievalLatency.Observe(time.Since(retrieveStart).Seconds())
	if len(items) == 0 {
		customer.UnansweredCount++
	} else {
		customer.UnansweredCount = 0
	}

	history, err := o.store.GetHistory(ctx, msg.CustomerID, 0)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("history: %w", err)
	}
	// The inbound turn is already in the log; the bundle carries it
	// separately.
	if n := len(history); n > 0 && history[n-1].Speaker == domain.SpeakerCustomer &&
		history[n-1].Text == msg.Text {
		history = history[:n-1]
	}
	bundle := o.assembler.Assemble(customer, history, items, msg.Text)

	text, err := o.generate(ctx, bundle)
	switch {
	case err == nil:
		return o.reply(ctx, customer, text, domain.OutcomeGenerated)
	case errors.Is(err, domain.ErrGenerationRejected):
		return o.handoff(ctx, customer, "generation_rejected", msg.Text)
	default:
		metrics.FallbacksTotal.Inc()
		o.logger.Error("generation failed, sending fallback",
			"customer", msg.CustomerID, "error", err)
		return o.reply(ctx, customer, prompt.FallbackReply, domain.OutcomeFallback)
	}
}

// HandleFollow greets a newly registered customer and creates their profile.
func (o *Orchestrator) HandleFollow(ctx context.Context, customerID, displayName string) (domain.Reply, error) {
	l := o.lockCustomer(customerID)
	l.Lock()
	defer l.Unlock()

	customer, err := o.store.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("load customer: %w", err)
	}
	created := customer == nil
	if created {
		customer = domain.NewCustomer(customerID)
	}
	if displayName != "" {
		customer.DisplayName = displayName
	}
	// The CRM may already know a new customer from earlier surveys; pull
	// what it holds before the first save.
	if created {
		if e, ok := o.assist.(ProfileEnricher); ok && e.EnrichCustomer(ctx, customer) {
			o.logger.Info("profile enriched from crm",
				"customer", customerID, "persona", customer.Persona)
		}
	}
	if err := o.store.SaveCustomer(ctx, customer); err != nil {
		return domain.Reply{}, fmt.Errorf("save customer: %w", err)
	}

	text := prompt.WelcomeMessage(customer.DisplayName)
	o.appendTurn(customerID, domain.Turn{
		Speaker: domain.SpeakerAgent, Text: text, Timestamp: time.Now(),
	})
	o.logger.Info("customer followed", "customer", customerID)
	return domain.Reply{Text: text, Outcome: domain.OutcomeGenerated}, nil
}

// classify updates persona and attributes from the recent window and emits
// sync intents for what actually changed.
func (o *Orchestrator) classify(ctx context.Context, c *domain.Customer, inbound string) {
	window := o.recentCustomerTexts(ctx, c.ID, inbound)
	res := o.classifier.Classify(window, c.Persona, c.Confidence)
	if res.Changed {
		c.Persona = res.Persona
		c.Confidence = res.Confidence
		metrics.PersonaChanges.Inc()
		o.bus.Publish(domain.TagSyncIntent{
			ID: uuid.NewString(), CustomerID: c.ID, Persona: res.Persona,
		})
	} else if res.Persona == c.Persona {
		c.Confidence = res.Confidence
	}

	if attrs := persona.ExtractAttributes(inbound); len(attrs) > 0 {
		changed := make(map[string]string)
		for k, v := range attrs {
			if c.Attributes[k] != v {
				c.Attributes[k] = v
				changed[k] = v
			}
		}
		if len(changed) > 0 {
			o.bus.Publish(domain.FieldSyncIntent{
				ID: uuid.NewString(), CustomerID: c.ID, Fields: changed,
			})
		}
	}
}

func (o *Orchestrator) recentCustomerTexts(ctx context.Context, customerID, inbound string) []string {
	history, err := o.store.GetHistory(ctx, customerID, 0)
	if err != nil {
		o.logger.Warn("history unavailable for classification",
			"customer", customerID, "error", err)
		return []string{inbound}
	}
	var texts []string
	for _, t := range history {
		if t.Speaker == domain.SpeakerCustomer {
			texts = append(texts, t.Text)
		}
	}
	if len(texts) == 0 || texts[len(texts)-1] != inbound {
		texts = append(texts, inbound)
	}
	if len(texts) > o.cfg.PersonaWindow {
		texts = texts[len(texts)-o.cfg.PersonaWindow:]
	}
	return texts
}

// generate calls the backend, retrying once after a backoff when the failure
// is transient. Rejections pass through untouched.
func (o *Orchestrator) generate(ctx context.Context, bundle domain.ContextBundle) (string, error) {
	msgs := prompt.Render(bundle)

	start := time.Now()
	text, err := o.gen.Generate(ctx, msgs)
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())
	if err == nil || !generator.IsRetryable(err) {
		return text, err
	}

	metrics.RetriesTotal.Inc()
	o.logger.Warn("generation failed, retrying once", "error", err)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(o.cfg.RetryBackoff):
	}

	start = time.Now()
	text, err = o.gen.Generate(ctx, msgs)
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())
	return text, err
}

// handoff flips the monotonic flag, notifies staff, and acknowledges the
// customer.
func (o *Orchestrator) handoff(ctx context.Context, c *domain.Customer, reason, message string) (domain.Reply, error) {
	c.HandoffFlag = true
	metrics.HandoffsTotal.Inc()
	o.logger.Info("conversation handed off", "customer", c.ID, "reason", reason)
	o.bus.Publish(domain.HandoffNotifyIntent{
		ID: uuid.NewString(), CustomerID: c.ID, Reason: reason, Message: message,
	})
	return o.reply(ctx, c, prompt.HandoffReply, domain.OutcomeHandoff)
}

// reply persists the customer, logs the agent turn, and returns the result.
func (o *Orchestrator) reply(ctx context.Context, c *domain.Customer, text string, outcome domain.ReplyOutcome) (domain.Reply, error) {
	if err := o.store.SaveCustomer(ctx, c); err != nil {
		return domain.Reply{}, fmt.Errorf("save customer: %w", err)
	}
	o.appendTurn(c.ID, domain.Turn{
		Speaker: domain.SpeakerAgent, Text: text, Timestamp: time.Now(),
	})
	return domain.Reply{Text: text, Outcome: outcome}, nil
}

func (o *Orchestrator) appendTurn(customerID string, turn domain.Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	o.bus.Publish(domain.HistoryAppendIntent{
		ID: uuid.NewString(), CustomerID: customerID, Turn: turn,
	})
}
