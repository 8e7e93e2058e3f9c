package domain

import "time"

// Persona is a closed set of behavioral labels inferred from conversation
// content. It drives knowledge retrieval weighting and CRM segmentation.
type Persona string

const (
	PersonaSideHustler    Persona = "side_hustler"
	PersonaStayHomeParent Persona = "stay_home_parent"
	PersonaBusinessOwner  Persona = "business_owner"
	PersonaSelfSeeker     Persona = "self_seeker"
	PersonaUnclassified   Persona = "unclassified"
)

// PersonaAll is the wildcard used by knowledge items that apply to every
// persona. It is never assigned to a customer.
const PersonaAll Persona = "all"

// Personas lists the assignable labels, excluding the unclassified sentinel.
var Personas = []Persona{
	PersonaSideHustler,
	PersonaStayHomeParent,
	PersonaBusinessOwner,
	PersonaSelfSeeker,
}

// ParsePersona returns the persona for s, or (unclassified, false) when s is
// not a known label. The wildcard "all" is accepted for knowledge records.
func ParsePersona(s string) (Persona, bool) {
	switch Persona(s) {
	case PersonaSideHustler, PersonaStayHomeParent, PersonaBusinessOwner,
		PersonaSelfSeeker, PersonaUnclassified, PersonaAll:
		return Persona(s), true
	}
	return PersonaUnclassified, false
}

// Description returns a short human-readable summary used in generator context.
func (p Persona) Description() string {
	switch p {
	case PersonaSideHustler:
		return "holds a full-time job and is looking for a second income"
	case PersonaStayHomeParent:
		return "balances childcare and housework while seeking income from home"
	case PersonaBusinessOwner:
		return "runs a business and wants to grow its reach and revenue"
	case PersonaSelfSeeker:
		return "seeks new challenges and a more self-directed way of working"
	default:
		return "has not shared enough for us to know their situation yet"
	}
}

// Customer is the per-user profile built up across a conversation. Created on
// first inbound message, updated in place, never deleted. The handoff flag is
// monotonic: once true it is never reset by the engine.
type Customer struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name,omitempty"`
	Persona     Persona           `json:"persona"`
	Confidence  float64           `json:"confidence"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	HandoffFlag bool              `json:"handoff_flag"`

	// UnansweredCount tracks consecutive turns where knowledge retrieval came
	// back empty. The escalation policy reads it.
	UnansweredCount int `json:"unanswered_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCustomer returns a fresh unclassified customer profile.
func NewCustomer(id string) *Customer {
	now := time.Now()
	return &Customer{
		ID:         id,
		Persona:    PersonaUnclassified,
		Attributes: make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so a ContextBundle can hold an immutable snapshot.
func (c *Customer) Clone() *Customer {
	cp := *c
	cp.Attributes = make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}
