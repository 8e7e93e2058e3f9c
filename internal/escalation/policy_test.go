package escalation

import (
	"io"
	"log/slog"
	"testing"
)

func testPolicy() *Policy {
	return NewPolicy(DefaultTurnCeiling, DefaultUnansweredLimit,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestComplaintOutranksEverything(t *testing.T) {
	p := testPolicy()
	ok, reason := p.ShouldHandoff("this is a scam, I want a real person",
		State{TurnCount: 50, UnansweredCount: 10})
	if !ok || reason != ReasonComplaint {
		t.Errorf("expected complaint, got (%v, %q)", ok, reason)
	}
}

func TestHumanRequestFiresOnFirstTurn(t *testing.T) {
	p := testPolicy()
	ok, reason := p.ShouldHandoff("can I speak to a human?", State{TurnCount: 1})
	if !ok || reason != ReasonHumanRequested {
		t.Errorf("expected human_requested, got (%v, %q)", ok, reason)
	}
}

func TestTurnCeilingRequiresNoConvergence(t *testing.T) {
	p := testPolicy()

	ok, reason := p.ShouldHandoff("tell me more", State{TurnCount: DefaultTurnCeiling})
	if !ok || reason != ReasonNoConvergence {
		t.Errorf("expected no_convergence at the ceiling, got (%v, %q)", ok, reason)
	}

	// A converged persona lifts the ceiling.
	ok, _ = p.ShouldHandoff("tell me more",
		State{TurnCount: DefaultTurnCeiling, PersonaConverged: true})
	if ok {
		t.Error("converged conversations may run past the ceiling")
	}
}

func TestUnansweredLimit(t *testing.T) {
	p := testPolicy()
	ok, reason := p.ShouldHandoff("and what about this?",
		State{TurnCount: 5, UnansweredCount: DefaultUnansweredLimit})
	if !ok || reason != ReasonUnanswered {
		t.Errorf("expected unanswered, got (%v, %q)", ok, reason)
	}

	ok, _ = p.ShouldHandoff("and what about this?",
		State{TurnCount: 5, UnansweredCount: DefaultUnansweredLimit - 1})
	if ok {
		t.Error("below the unanswered limit the bot keeps the conversation")
	}
}

func TestNormalMessagePasses(t *testing.T) {
	p := testPolicy()
	ok, reason := p.ShouldHandoff("how much does the program cost?", State{TurnCount: 3})
	if ok {
		t.Errorf("expected no handoff, got reason %q", reason)
	}
}

func TestPhraseMatchingIsCaseInsensitive(t *testing.T) {
	p := testPolicy()
	ok, reason := p.ShouldHandoff("OPERATOR NOW", State{})
	if !ok || reason != ReasonHumanRequested {
		t.Errorf("expected human_requested, got (%v, %q)", ok, reason)
	}
}

func TestZeroLimitsFallBackToDefaults(t *testing.T) {
	p := NewPolicy(0, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ok, _ := p.ShouldHandoff("hi", State{TurnCount: DefaultTurnCeiling - 1})
	if ok {
		t.Error("defaults should apply when limits are zero")
	}
	ok, reason := p.ShouldHandoff("hi", State{TurnCount: DefaultTurnCeiling})
	if !ok || reason != ReasonNoConvergence {
		t.Errorf("expected default ceiling to fire, got (%v, %q)", ok, reason)
	}
}
