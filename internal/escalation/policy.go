// Package escalation decides when a conversation must leave the bot and go
// to a human operator.
package escalation

import (
	"log/slog"
	"strings"
	"unicode"
)

// Escalation reasons, in the order they are checked. Complaints outrank an
// explicit request for a human, which outranks the structural limits.
const (
	ReasonComplaint      = "complaint"
	ReasonHumanRequested = "human_requested"
	ReasonNoConvergence  = "no_convergence"
	ReasonUnanswered     = "unanswered"
)

const (
	DefaultTurnCeiling     = 20
	DefaultUnansweredLimit = 3
)

var complaintPhrases = []string{
	"unacceptable", "complaint", "refund", "terrible", "scam", "fraud",
	"ripoff", "rip-off", "lawyer", "sue", "report you", "cancel my",
	"worst", "furious", "disgusted",
}

var humanPhrases = []string{
	"speak to a human", "talk to a human", "real person", "speak to a person",
	"talk to someone", "human please", "operator", "speak with staff",
	"talk to staff", "actual person", "stop the bot", "no more bot",
}

// State is the slice of conversation state the policy needs. The caller
// assembles it from the customer profile and turn counters.
type State struct {
	TurnCount        int
	PersonaConverged bool
	UnansweredCount  int
}

// Policy applies the handoff rules with configured limits.
type Policy struct {
	turnCeiling     int
	unansweredLimit int
	logger          *slog.Logger
}

func NewPolicy(turnCeiling, unansweredLimit int, logger *slog.Logger) *Policy {
	if turnCeiling <= 0 {
		turnCeiling = DefaultTurnCeiling
	}
	if unansweredLimit <= 0 {
		unansweredLimit = DefaultUnansweredLimit
	}
	return &Policy{turnCeiling: turnCeiling, unansweredLimit: unansweredLimit, logger: logger}
}

// ShouldHandoff checks the inbound message and conversation state against the
// handoff rules. It returns the highest-priority reason that fires, or false
// when the bot should keep the conversation.
func (p *Policy) ShouldHandoff(message string, st State) (bool, string) {
	lowered := strings.ToLower(message)
	tokens := tokenize(lowered)

	if matchAny(complaintPhrases, lowered, tokens) {
		return true, ReasonComplaint
	}
	if matchAny(humanPhrases, lowered, tokens) {
		return true, ReasonHumanRequested
	}
	if st.TurnCount >= p.turnCeiling && !st.PersonaConverged {
		return true, ReasonNoConvergence
	}
	if st.UnansweredCount >= p.unansweredLimit {
		return true, ReasonUnanswered
	}
	return false, ""
}

func matchAny(phrases []string, lowered string, tokens map[string]bool) bool {
	for _, ph := range phrases {
		if strings.ContainsRune(ph, ' ') {
			if strings.Contains(lowered, ph) {
				return true
			}
		} else if tokens[ph] {
			return true
		}
	}
	return false
}

func tokenize(lowered string) map[string]bool {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
