package persona

import (
	"sort"
	"strings"
)

// occupationTerms and interestTerms map surface phrases to the canonical
// value stored on the customer and synced to the CRM.
var occupationTerms = map[string]string{
	"office worker": "office worker",
	"office job":    "office worker",
	"salaryman":     "office worker",
	"nurse":         "nurse",
	"teacher":       "teacher",
	"engineer":      "engineer",
	"freelance":     "freelancer",
	"freelancer":    "freelancer",
	"part-time":     "part-time worker",
	"part time job": "part-time worker",
	"self-employed": "self-employed",
	"salon owner":   "salon owner",
	"shop owner":    "shop owner",
	"homemaker":     "homemaker",
	"housewife":     "homemaker",
	"househusband":  "homemaker",
	"student":       "student",
	"retired":       "retired",
}

var interestTerms = map[string]string{
	"cooking":     "cooking",
	"recipes":     "cooking",
	"baking":      "cooking",
	"fitness":     "fitness",
	"workout":     "fitness",
	"diet":        "fitness",
	"yoga":        "fitness",
	"beauty":      "beauty",
	"makeup":      "beauty",
	"skincare":    "beauty",
	"fashion":     "fashion",
	"handmade":    "crafts",
	"crafts":      "crafts",
	"knitting":    "crafts",
	"travel":      "travel",
	"photography": "photography",
	"parenting":   "parenting",
	"investing":   "finance",
	"gardening":   "gardening",
}

// ExtractAttributes scans a message for profile facts worth persisting.
// Returns only the keys it found; an empty map means nothing new.
func ExtractAttributes(text string) map[string]string {
	lowered := strings.ToLower(text)
	tokens := tokenize(lowered)
	out := make(map[string]string)

	if v, ok := firstMatch(occupationTerms, lowered, tokens); ok {
		out["occupation"] = v
	}
	if v, ok := firstMatch(interestTerms, lowered, tokens); ok {
		out["interest"] = v
	}
	return out
}

// firstMatch scans phrases in sorted order so the result does not depend on
// map iteration.
func firstMatch(terms map[string]string, lowered string, tokens map[string]bool) (string, bool) {
	phrases := make([]string, 0, len(terms))
	for p := range terms {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	for _, p := range phrases {
		if matchPhrase(p, lowered, tokens) {
			return terms[p], true
		}
	}
	return "", false
}

func matchPhrase(phrase, lowered string, tokens map[string]bool) bool {
	if strings.ContainsRune(phrase, ' ') {
		return strings.Contains(lowered, phrase)
	}
	return tokens[phrase]
}
