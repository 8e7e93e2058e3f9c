package domain

// ItemKind tags the two knowledge record variants.
type ItemKind string

const (
	KindSuccessCase ItemKind = "success_case"
	KindFAQ         ItemKind = "faq"
)

// KnowledgeItem is an immutable, keyword-indexed reference document. Records
// are edited out-of-band and reloaded as a whole snapshot; they are never
// mutated in memory.
type KnowledgeItem interface {
	ItemID() string
	Kind() ItemKind
	ItemKeywords() []string
	ItemPersonas() []Persona
	// Body renders the record as text suitable for generator context.
	Body() string
}

// SuccessCase is a student success story.
type SuccessCase struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Profile     string    `yaml:"profile" json:"profile"`
	Genre       string    `yaml:"genre" json:"genre"`
	Situation   string    `yaml:"situation" json:"situation"`
	Achievement string    `yaml:"achievement" json:"achievement"`
	Period      string    `yaml:"period" json:"period"`
	Points      string    `yaml:"points" json:"points"`
	Personas    []Persona `yaml:"personas" json:"personas"`
	Keywords    []string  `yaml:"keywords" json:"keywords"`
}

func (s SuccessCase) ItemID() string          { return s.ID }
func (s SuccessCase) Kind() ItemKind          { return KindSuccessCase }
func (s SuccessCase) ItemKeywords() []string  { return s.Keywords }
func (s SuccessCase) ItemPersonas() []Persona { return s.Personas }

func (s SuccessCase) Body() string {
	return s.Title + "\n" +
		"Profile: " + s.Profile + "\n" +
		"Genre: " + s.Genre + "\n" +
		"Starting point: " + s.Situation + "\n" +
		"Result: " + s.Achievement + " (in " + s.Period + ")\n" +
		"What worked: " + s.Points
}

// FAQ is a frequently asked question with its canonical answer.
type FAQ struct {
	ID       string    `yaml:"id" json:"id"`
	Category string    `yaml:"category" json:"category"`
	Question string    `yaml:"question" json:"question"`
	Answer   string    `yaml:"answer" json:"answer"`
	Personas []Persona `yaml:"personas" json:"personas"`
	Keywords []string  `yaml:"keywords" json:"keywords"`
}

func (f FAQ) ItemID() string          { return f.ID }
func (f FAQ) Kind() ItemKind          { return KindFAQ }
func (f FAQ) ItemKeywords() []string  { return f.Keywords }
func (f FAQ) ItemPersonas() []Persona { return f.Personas }

func (f FAQ) Body() string {
	return "Q: " + f.Question + "\nA: " + f.Answer
}

// MatchesPersona reports whether an item applies to the given persona, either
// directly or through the "all" wildcard. An unclassified persona only matches
// the wildcard.
func MatchesPersona(item KnowledgeItem, p Persona) bool {
	for _, ip := range item.ItemPersonas() {
		if ip == PersonaAll {
			return true
		}
		if p != PersonaUnclassified && ip == p {
			return true
		}
	}
	return false
}
