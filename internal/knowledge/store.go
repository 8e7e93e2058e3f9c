// Package knowledge holds the curated success-case and FAQ records and
// answers relevance queries against an immutable in-memory snapshot.
package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"personabot/internal/domain"
)

const defaultTopK = 3

// Snapshot is one fully-loaded, immutable knowledge set. Reloading builds a
// new Snapshot and swaps it in atomically; in-flight queries keep the old one.
type Snapshot struct {
	Cases []domain.SuccessCase
	FAQs  []domain.FAQ

	items []domain.KnowledgeItem // cases then faqs, load order
}

// Store serves relevance queries and supports reload-and-swap.
type Store struct {
	snap   atomic.Pointer[Snapshot]
	dir    string
	logger *slog.Logger
}

// NewStore loads the knowledge directory and returns a ready store. A missing
// or malformed source is a fatal startup error, never a per-query one.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	s := &Store{dir: dir, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromSnapshot wraps an already-built snapshot. Used by tests and by
// callers that load records from somewhere other than the default directory.
func NewStoreFromSnapshot(snap *Snapshot, logger *slog.Logger) *Store {
	snap.index()
	s := &Store{logger: logger}
	s.snap.Store(snap)
	return s
}

// Reload re-reads the knowledge directory and swaps the snapshot. Safe to
// call while queries are running.
func (s *Store) Reload() error {
	snap, err := loadDir(s.dir)
	if err != nil {
		return fmt.Errorf("load knowledge from %s: %w", s.dir, err)
	}
	snap.index()
	s.snap.Store(snap)
	s.logger.Info("knowledge snapshot loaded",
		"dir", s.dir, "cases", len(snap.Cases), "faqs", len(snap.FAQs))
	return nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.snap.Load()
}

func (snap *Snapshot) index() {
	snap.items = make([]domain.KnowledgeItem, 0, len(snap.Cases)+len(snap.FAQs))
	for _, c := range snap.Cases {
		snap.items = append(snap.items, c)
	}
	for _, f := range snap.FAQs {
		snap.items = append(snap.items, f)
	}
}

// Query scores every item by keyword overlap with the free text, doubles the
// score when the item's personas include p (or the wildcard), and returns at
// most topK items ordered by score descending, item ID ascending. Identical
// inputs against the same snapshot always yield the identical ordering. An
// empty result is not an error.
func (s *Store) Query(p domain.Persona, freeText string, topK int) []domain.KnowledgeItem {
	if topK <= 0 {
		topK = defaultTopK
	}
	snap := s.snap.Load()

	lowered := strings.ToLower(freeText)
	tokens := tokenize(lowered)

	type scored struct {
		item  domain.KnowledgeItem
		score int
	}
	var hits []scored
	for _, item := range snap.items {
		sc := overlap(item.ItemKeywords(), lowered, tokens)
		if sc == 0 {
			continue
		}
		if domain.MatchesPersona(item, p) {
			sc *= 2
		}
		hits = append(hits, scored{item: item, score: sc})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].item.ItemID() < hits[j].item.ItemID()
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]domain.KnowledgeItem, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

// overlap counts how many of the item's keywords occur in the message.
// Single-word keywords match whole tokens; multi-word keywords match as
// substrings of the lowered text.
func overlap(keywords []string, lowered string, tokens map[string]bool) int {
	n := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(lowered, kw) {
				n++
			}
		} else if tokens[kw] {
			n++
		}
	}
	return n
}

func tokenize(lowered string) map[string]bool {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
