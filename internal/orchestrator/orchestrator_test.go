package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"personabot/internal/bus"
	"personabot/internal/domain"
	"personabot/internal/escalation"
	"personabot/internal/knowledge"
	"personabot/internal/persona"
	"personabot/internal/prompt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory domain.Store for orchestration tests.
type memStore struct {
	mu        sync.Mutex
	customers map[string]*domain.Customer
	turns     map[string][]domain.Turn
}

func newMemStore() *memStore {
	return &memStore{
		customers: make(map[string]*domain.Customer),
		turns:     make(map[string][]domain.Turn),
	}
}

func (m *memStore) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

func (m *memStore) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c.Clone()
	return nil
}

func (m *memStore) AppendTurn(ctx context.Context, customerID string, turn domain.Turn) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turn.Seq = int64(len(m.turns[customerID]) + 1)
	m.turns[customerID] = append(m.turns[customerID], turn)
	return turn, nil
}

func (m *memStore) GetHistory(ctx context.Context, customerID string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[customerID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *memStore) LastTurn(ctx context.Context, customerID string) (*domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[customerID]
	if len(turns) == 0 {
		return nil, nil
	}
	t := turns[len(turns)-1]
	return &t, nil
}

func (m *memStore) CountTurns(ctx context.Context, customerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns[customerID]), nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) agentTurns(customerID string) []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Turn
	for _, t := range m.turns[customerID] {
		if t.Speaker == domain.SpeakerAgent {
			out = append(out, t)
		}
	}
	return out
}

// scriptedGen returns queued results, repeating the last one.
type scriptedGen struct {
	mu      sync.Mutex
	results []genResult
	calls   int
}

type genResult struct {
	text string
	err  error
}

func (g *scriptedGen) Generate(ctx context.Context, msgs []domain.GenMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	return g.results[i].text, g.results[i].err
}
func (g *scriptedGen) Name() string                      { return "scripted" }
func (g *scriptedGen) Healthy(ctx context.Context) error { return nil }

func (g *scriptedGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixedGate bool

func (f fixedGate) InAssistMode(ctx context.Context, customerID string) bool { return bool(f) }

// intentRecorder counts intents by kind.
type intentRecorder struct {
	mu      sync.Mutex
	intents []domain.Intent
}

func (r *intentRecorder) record(in domain.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
}

func (r *intentRecorder) byKind(k domain.IntentKind) []domain.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Intent
	for _, in := range r.intents {
		if in.IntentKind() == k {
			out = append(out, in)
		}
	}
	return out
}

type harness struct {
	orch  *Orchestrator
	store *memStore
	gen   *scriptedGen
	rec   *intentRecorder
}

func newHarness(t *testing.T, gen *scriptedGen, gate AssistGate) *harness {
	t.Helper()
	logger := testLogger()
	ms := newMemStore()
	b := bus.New(logger)

	// The store fills the conversation log from history intents, like the
	// real SQLite store does.
	b.Subscribe(domain.IntentHistoryAppend, func(in domain.Intent) {
		hi := in.(domain.HistoryAppendIntent)
		ms.AppendTurn(context.Background(), hi.CustomerID, hi.Turn)
	})

	rec := &intentRecorder{}
	for _, k := range []domain.IntentKind{
		domain.IntentTagSync, domain.IntentFieldSync, domain.IntentHandoffNotify,
	} {
		b.Subscribe(k, rec.record)
	}

	ks := knowledge.NewStoreFromSnapshot(&knowledge.Snapshot{
		Cases: []domain.SuccessCase{{
			ID: "case_side", Title: "side income story", Points: "batching",
			Personas: []domain.Persona{domain.PersonaSideHustler},
			Keywords: []string{"side business", "income", "job"},
		}},
		FAQs: []domain.FAQ{{
			ID: "faq_price", Question: "cost?", Answer: "ask us",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"price", "cost"},
		}},
	}, logger)

	orch := New(ms, ks,
		persona.NewClassifier(persona.DefaultThreshold, logger),
		escalation.NewPolicy(20, 3, logger),
		prompt.NewAssembler(10),
		gen, b, gate,
		Config{PersonaWindow: 5, TopK: 3, RetryBackoff: time.Millisecond},
		logger)

	return &harness{orch: orch, store: ms, gen: gen, rec: rec}
}

func inbound(customerID, text string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel: "test", CustomerID: customerID, Text: text, Timestamp: time.Now(),
	}
}

func TestPersonaConvergenceSyncsTagOnce(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "sure!"}}}, nil)
	ctx := context.Background()

	msgs := []string{
		"I want to start a side business while keeping my job",
		"what extra income could I expect after work?",
		"my day job keeps me busy so weekends only",
	}
	for _, m := range msgs {
		if _, err := h.orch.HandleMessage(ctx, inbound("u1", m)); err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
	}

	c, _ := h.store.GetCustomer(ctx, "u1")
	if c.Persona != domain.PersonaSideHustler {
		t.Errorf("expected side_hustler, got %s", c.Persona)
	}

	tags := h.rec.byKind(domain.IntentTagSync)
	if len(tags) != 1 {
		t.Fatalf("expected exactly one tag sync, got %d", len(tags))
	}
	ti := tags[0].(domain.TagSyncIntent)
	if ti.Persona != domain.PersonaSideHustler {
		t.Errorf("unexpected tag persona %s", ti.Persona)
	}
}

func TestHumanRequestHandsOffWithoutGeneration(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "never sent"}}}, nil)

	reply, err := h.orch.HandleMessage(context.Background(),
		inbound("u1", "can I speak to a human please"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Outcome != domain.OutcomeHandoff {
		t.Errorf("expected handoff outcome, got %s", reply.Outcome)
	}
	if h.gen.callCount() != 0 {
		t.Error("generator must not run on a first-turn human request")
	}

	notifies := h.rec.byKind(domain.IntentHandoffNotify)
	if len(notifies) != 1 {
		t.Fatalf("expected one handoff notification, got %d", len(notifies))
	}
	if reason := notifies[0].(domain.HandoffNotifyIntent).Reason; reason != escalation.ReasonHumanRequested {
		t.Errorf("unexpected reason %q", reason)
	}

	c, _ := h.store.GetCustomer(context.Background(), "u1")
	if !c.HandoffFlag {
		t.Error("handoff flag must persist")
	}
}

func TestTransientFailureRetriesOnce(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{
		{err: domain.ErrGenerationUnavailable},
		{text: "second try worked"},
	}}, nil)

	reply, err := h.orch.HandleMessage(context.Background(), inbound("u1", "what is the price?"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Outcome != domain.OutcomeGenerated || reply.Text != "second try worked" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if h.gen.callCount() != 2 {
		t.Errorf("expected exactly 2 generation calls, got %d", h.gen.callCount())
	}
}

func TestDoubleFailureSendsFallback(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{
		{err: domain.ErrGenerationUnavailable},
	}}, nil)

	reply, err := h.orch.HandleMessage(context.Background(), inbound("u1", "what is the price?"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Outcome != domain.OutcomeFallback || reply.Text != prompt.FallbackReply {
		t.Errorf("unexpected reply %+v", reply)
	}
	if h.gen.callCount() != 2 {
		t.Errorf("expected exactly 2 generation calls, got %d", h.gen.callCount())
	}

	// Both turns are on the log and the conversation is not handed off.
	agent := h.store.agentTurns("u1")
	if len(agent) != 1 || agent[0].Text != prompt.FallbackReply {
		t.Errorf("fallback turn not logged: %+v", agent)
	}
	c, _ := h.store.GetCustomer(context.Background(), "u1")
	if c.HandoffFlag {
		t.Error("fallback must not hand off")
	}
}

func TestRejectionForcesHandoff(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{
		{err: domain.ErrGenerationRejected},
	}}, nil)

	reply, err := h.orch.HandleMessage(context.Background(), inbound("u1", "what is the price?"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Outcome != domain.OutcomeHandoff {
		t.Errorf("expected handoff, got %s", reply.Outcome)
	}
	if h.gen.callCount() != 1 {
		t.Errorf("rejection must not retry, got %d calls", h.gen.callCount())
	}
	c, _ := h.store.GetCustomer(context.Background(), "u1")
	if !c.HandoffFlag {
		t.Error("handoff flag must be set")
	}
}

func TestHandoffFlagBlocksGeneration(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "never sent"}}}, nil)
	ctx := context.Background()

	c := domain.NewCustomer("u1")
	c.HandoffFlag = true
	h.store.SaveCustomer(ctx, c)

	reply, err := h.orch.HandleMessage(ctx, inbound("u1", "hello again"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Outcome != domain.OutcomeHandoff {
		t.Errorf("expected handoff outcome, got %s", reply.Outcome)
	}
	if h.gen.callCount() != 0 {
		t.Error("handed-off conversations must never reach the generator")
	}
}

func TestOutOfOrderMessageRejected(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "ok"}}}, nil)
	ctx := context.Background()

	if _, err := h.orch.HandleMessage(ctx, inbound("u1", "price?")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	stale := domain.InboundMessage{
		Channel: "test", CustomerID: "u1", Text: "old message",
		Timestamp: time.Now().Add(-time.Hour),
	}
	_, err := h.orch.HandleMessage(ctx, stale)
	if !errors.Is(err, domain.ErrOutOfOrderTurn) {
		t.Errorf("expected ErrOutOfOrderTurn, got %v", err)
	}
}

func TestEmptyRetrievalStillGeneratesAndCounts(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "generic answer"}}}, nil)
	ctx := context.Background()

	reply, err := h.orch.HandleMessage(ctx, inbound("u1", "zzz qqq completely unrelated"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Outcome != domain.OutcomeGenerated {
		t.Errorf("empty retrieval must still generate, got %s", reply.Outcome)
	}

	c, _ := h.store.GetCustomer(ctx, "u1")
	if c.UnansweredCount != 1 {
		t.Errorf("expected unanswered count 1, got %d", c.UnansweredCount)
	}

	// A retrieval hit resets the counter.
	if _, err := h.orch.HandleMessage(ctx, inbound("u1", "what is the price?")); err != nil {
		t.Fatal(err)
	}
	c, _ = h.store.GetCustomer(ctx, "u1")
	if c.UnansweredCount != 0 {
		t.Errorf("expected reset counter, got %d", c.UnansweredCount)
	}
}

func TestRepeatedUnansweredTurnsEscalate(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "generic answer"}}}, nil)
	ctx := context.Background()

	// Three misses raise the counter to the limit; the fourth turn hands off.
	for i := 0; i < 3; i++ {
		reply, err := h.orch.HandleMessage(ctx, inbound("u1", "zzz qqq unrelated"))
		if err != nil {
			t.Fatal(err)
		}
		if reply.Outcome != domain.OutcomeGenerated {
			t.Fatalf("turn %d: expected generated, got %s", i, reply.Outcome)
		}
	}
	reply, err := h.orch.HandleMessage(ctx, inbound("u1", "zzz qqq unrelated"))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Outcome != domain.OutcomeHandoff {
		t.Errorf("expected unanswered escalation, got %s", reply.Outcome)
	}
	notifies := h.rec.byKind(domain.IntentHandoffNotify)
	if len(notifies) != 1 ||
		notifies[0].(domain.HandoffNotifyIntent).Reason != escalation.ReasonUnanswered {
		t.Errorf("unexpected notifications %+v", notifies)
	}
}

func TestAssistModeStaysSilent(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "never sent"}}}, fixedGate(true))

	reply, err := h.orch.HandleMessage(context.Background(), inbound("u1", "hello"))
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply.Text != "" {
		t.Errorf("assist mode must not reply, got %q", reply.Text)
	}
	if h.gen.callCount() != 0 {
		t.Error("assist mode must not generate")
	}

	// The customer turn is still logged for staff.
	turns, _ := h.store.GetHistory(context.Background(), "u1", 10)
	if len(turns) != 1 || turns[0].Speaker != domain.SpeakerCustomer {
		t.Errorf("inbound turn not logged: %+v", turns)
	}

	// A first-contact customer still gets a profile row.
	c, _ := h.store.GetCustomer(context.Background(), "u1")
	if c == nil {
		t.Fatal("assist mode must still persist the customer profile")
	}
	if c.Persona != domain.PersonaUnclassified {
		t.Errorf("new customer must start unclassified, got %s", c.Persona)
	}
}

func TestHandleFollowSendsWelcome(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "x"}}}, nil)
	ctx := context.Background()

	reply, err := h.orch.HandleFollow(ctx, "u1", "Aya")
	if err != nil {
		t.Fatalf("HandleFollow failed: %v", err)
	}
	if reply.Text != prompt.WelcomeMessage("Aya") {
		t.Errorf("unexpected welcome %q", reply.Text)
	}

	c, _ := h.store.GetCustomer(ctx, "u1")
	if c == nil || c.DisplayName != "Aya" {
		t.Errorf("profile not created: %+v", c)
	}
	if c.Persona != domain.PersonaUnclassified {
		t.Errorf("new customer must start unclassified, got %s", c.Persona)
	}

	agent := h.store.agentTurns("u1")
	if len(agent) != 1 {
		t.Errorf("welcome turn not logged: %+v", agent)
	}
}

// enrichingGate simulates a CRM gate that already holds profile data for
// customers it has seen before.
type enrichingGate struct {
	persona domain.Persona
	fields  map[string]string
	calls   int
}

func (g *enrichingGate) InAssistMode(ctx context.Context, customerID string) bool { return false }

func (g *enrichingGate) EnrichCustomer(ctx context.Context, c *domain.Customer) bool {
	g.calls++
	changed := false
	if c.Persona == domain.PersonaUnclassified && g.persona != domain.PersonaUnclassified {
		c.Persona = g.persona
		changed = true
	}
	for k, v := range g.fields {
		if _, taken := c.Attributes[k]; !taken {
			c.Attributes[k] = v
			changed = true
		}
	}
	return changed
}

func TestHandleFollowEnrichesNewCustomerFromCRM(t *testing.T) {
	gate := &enrichingGate{
		persona: domain.PersonaBusinessOwner,
		fields:  map[string]string{"occupation": "salon owner"},
	}
	h := newHarness(t, &scriptedGen{}, gate)
	ctx := context.Background()

	if _, err := h.orch.HandleFollow(ctx, "u1", "Aya"); err != nil {
		t.Fatalf("HandleFollow failed: %v", err)
	}

	c, _ := h.store.GetCustomer(ctx, "u1")
	if c == nil {
		t.Fatal("profile not created")
	}
	if c.Persona != domain.PersonaBusinessOwner {
		t.Errorf("persona not pulled from CRM, got %s", c.Persona)
	}
	if c.Attributes["occupation"] != "salon owner" {
		t.Errorf("custom fields not pulled from CRM: %+v", c.Attributes)
	}

	// A re-follow of a known customer keeps the stored profile as-is.
	if _, err := h.orch.HandleFollow(ctx, "u1", "Aya"); err != nil {
		t.Fatalf("second HandleFollow failed: %v", err)
	}
	if gate.calls != 1 {
		t.Errorf("expected one enrichment, got %d", gate.calls)
	}
}

func TestConcurrentCustomersDoNotInterleaveState(t *testing.T) {
	h := newHarness(t, &scriptedGen{results: []genResult{{text: "ok"}}}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if _, err := h.orch.HandleMessage(ctx, inbound(id, "what is the price?")); err != nil {
					t.Errorf("customer %s: %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c", "d"} {
		n, _ := h.store.CountTurns(ctx, id)
		if n != 10 { // 5 inbound + 5 replies
			t.Errorf("customer %s: expected 10 turns, got %d", id, n)
		}
	}
}
