// Package persona infers a customer's persona from their recent messages
// using weighted keyword lexicons. Classification is deterministic and cheap
// enough to run on every inbound turn.
package persona

import (
	"log/slog"
	"strings"
	"unicode"

	"personabot/internal/domain"
)

// DefaultThreshold is the confidence a rival persona must exceed before it
// replaces the customer's stored one.
const DefaultThreshold = 0.5

// lexicons maps each persona to the phrases that signal it. Multi-word
// phrases match as substrings of the lowered text; single words match whole
// tokens only.
var lexicons = map[domain.Persona][]string{
	domain.PersonaSideHustler: {
		"side business", "side hustle", "side income", "second income",
		"extra income", "extra money", "after work", "day job", "my job",
		"keeping my job", "while working", "commute", "salary", "paycheck",
		"office worker", "weekends", "moonlight",
	},
	domain.PersonaStayHomeParent: {
		"stay at home", "stay-at-home", "my kids", "my children", "my baby",
		"my son", "my daughter", "daycare", "nap time", "housework",
		"toddler", "parenting", "maternity", "while raising", "school run",
		"between chores",
	},
	domain.PersonaBusinessOwner: {
		"my business", "my company", "my shop", "my store", "my salon",
		"my restaurant", "my clients", "my customers", "new customers",
		"new clients", "foot traffic", "revenue", "advertising", "ad spend",
		"owner", "self-employed", "my staff", "my brand",
	},
	domain.PersonaSelfSeeker: {
		"something new", "new challenge", "challenge myself", "my dream",
		"find myself", "freedom", "passion", "change my life", "fresh start",
		"possibilities", "grow as a person", "what i really want",
		"on my own terms",
	},
}

// Result is one classification outcome.
type Result struct {
	Persona    domain.Persona
	Confidence float64
	// Changed reports whether the persona differs from the prior one and the
	// confidence exceeded the threshold, i.e. whether callers should persist
	// and sync the new persona.
	Changed bool
}

// Classifier scores message windows against the persona lexicons.
type Classifier struct {
	threshold float64
	logger    *slog.Logger
}

func NewClassifier(threshold float64, logger *slog.Logger) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Classifier{threshold: threshold, logger: logger}
}

// Classify scores the customer's recent messages and decides whether the
// stored persona should change. With no lexicon hits at all the result is
// unclassified with zero confidence and Changed is always false: silence
// never downgrades an established persona.
func (c *Classifier) Classify(window []string, prior domain.Persona, priorConf float64) Result {
	lowered := strings.ToLower(strings.Join(window, "\n"))
	tokens := tokenize(lowered)

	scores := make(map[domain.Persona]int, len(domain.Personas))
	total := 0
	for p, phrases := range lexicons {
		s := scorePhrases(phrases, lowered, tokens)
		scores[p] = s
		total += s
	}

	if total == 0 {
		return Result{Persona: domain.PersonaUnclassified, Confidence: 0}
	}

	// Iterate the fixed persona order so ties resolve deterministically.
	top := domain.PersonaUnclassified
	topScore := 0
	for _, p := range domain.Personas {
		if scores[p] > topScore {
			top = p
			topScore = scores[p]
		}
	}

	conf := float64(topScore) / float64(total)
	res := Result{Persona: top, Confidence: conf}

	if top == prior {
		// Same persona, refreshed confidence; nothing to sync.
		return res
	}
	// Switch only when confidence strictly exceeds the threshold.
	if conf > c.threshold {
		res.Changed = true
		c.logger.Debug("persona change detected",
			"from", prior, "to", top, "confidence", conf)
		return res
	}
	// Not confident enough to switch; keep the prior.
	res.Persona = prior
	res.Confidence = priorConf
	return res
}

func scorePhrases(phrases []string, lowered string, tokens map[string]bool) int {
	n := 0
	for _, ph := range phrases {
		if strings.ContainsRune(ph, ' ') {
			if strings.Contains(lowered, ph) {
				n++
			}
		} else if tokens[ph] {
			n++
		}
	}
	return n
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
