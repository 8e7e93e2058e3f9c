package persona

import (
	"io"
	"log/slog"
	"testing"

	"personabot/internal/domain"
)

func testClassifier() *Classifier {
	return NewClassifier(DefaultThreshold, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClassifySideHustler(t *testing.T) {
	c := testClassifier()
	res := c.Classify(
		[]string{"I want to start a side business while keeping my job"},
		domain.PersonaUnclassified, 0)

	if res.Persona != domain.PersonaSideHustler {
		t.Errorf("expected side_hustler, got %s", res.Persona)
	}
	if res.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", res.Confidence)
	}
	if !res.Changed {
		t.Error("expected persona change from unclassified")
	}
}

func TestClassifyNoSignal(t *testing.T) {
	c := testClassifier()
	res := c.Classify([]string{"hello", "how are you"}, domain.PersonaUnclassified, 0)

	if res.Persona != domain.PersonaUnclassified {
		t.Errorf("expected unclassified, got %s", res.Persona)
	}
	if res.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", res.Confidence)
	}
	if res.Changed {
		t.Error("no signal must never report a change")
	}
}

func TestClassifySilenceKeepsEstablishedPersona(t *testing.T) {
	c := testClassifier()
	res := c.Classify([]string{"thanks, that helps"}, domain.PersonaBusinessOwner, 0.8)

	if res.Changed {
		t.Error("no lexicon hits must not change an established persona")
	}
}

func TestClassifyBelowThresholdKeepsPrior(t *testing.T) {
	c := testClassifier()
	// One hit each for three personas: the leader's share is a third, below
	// the threshold, so the prior stands.
	res := c.Classify(
		[]string{"my kids love when I try something new after work"},
		domain.PersonaBusinessOwner, 0.7)

	if res.Changed {
		t.Error("sub-threshold evidence must not change the persona")
	}
	if res.Persona != domain.PersonaBusinessOwner {
		t.Errorf("expected prior persona kept, got %s", res.Persona)
	}
	if res.Confidence != 0.7 {
		t.Errorf("expected prior confidence kept, got %f", res.Confidence)
	}
}

func TestClassifyExactThresholdKeepsPrior(t *testing.T) {
	c := testClassifier()
	// One hit each for two personas puts the leader at exactly the
	// threshold. Switching requires exceeding it, so the prior stands.
	res := c.Classify(
		[]string{"my job and my shop keep me busy"},
		domain.PersonaStayHomeParent, 0.8)

	if res.Changed {
		t.Error("confidence at the threshold must not change the persona")
	}
	if res.Persona != domain.PersonaStayHomeParent {
		t.Errorf("expected prior persona kept, got %s", res.Persona)
	}
	if res.Confidence != 0.8 {
		t.Errorf("expected prior confidence kept, got %f", res.Confidence)
	}
}

func TestClassifyThresholdedChange(t *testing.T) {
	c := testClassifier()
	res := c.Classify(
		[]string{"I run my salon and need new customers, revenue is down"},
		domain.PersonaSideHustler, 0.6)

	if res.Persona != domain.PersonaBusinessOwner {
		t.Errorf("expected business_owner, got %s", res.Persona)
	}
	if !res.Changed {
		t.Error("expected a persona change above the threshold")
	}
}

func TestClassifySamePersonaNotAChange(t *testing.T) {
	c := testClassifier()
	res := c.Classify(
		[]string{"more extra income after work would be great"},
		domain.PersonaSideHustler, 0.5)

	if res.Persona != domain.PersonaSideHustler {
		t.Errorf("expected side_hustler, got %s", res.Persona)
	}
	if res.Changed {
		t.Error("re-confirming the same persona is not a change")
	}
}

func TestClassifyDeterministicTieBreak(t *testing.T) {
	c := testClassifier()
	// One hit each for side hustler and business owner; the fixed persona
	// order decides, and repeated runs must agree.
	window := []string{"my job pays the bills but my shop is my passion project"}
	first := c.Classify(window, domain.PersonaUnclassified, 0)
	for i := 0; i < 10; i++ {
		again := c.Classify(window, domain.PersonaUnclassified, 0)
		if again.Persona != first.Persona || again.Confidence != first.Confidence {
			t.Fatalf("run %d: result changed from %+v to %+v", i, first, again)
		}
	}
}

func TestExtractAttributes(t *testing.T) {
	got := ExtractAttributes("I'm an office worker and I love cooking on weekends")
	if got["occupation"] != "office worker" {
		t.Errorf("expected occupation 'office worker', got %q", got["occupation"])
	}
	if got["interest"] != "cooking" {
		t.Errorf("expected interest 'cooking', got %q", got["interest"])
	}

	got = ExtractAttributes("just saying hi")
	if len(got) != 0 {
		t.Errorf("expected no attributes, got %v", got)
	}
}
