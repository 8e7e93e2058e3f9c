package domain

// IntentKind tags the side-effect intent variants produced by the
// orchestrator. Intents are declarative: the engine decides, external
// consumers perform the I/O.
type IntentKind string

const (
	IntentTagSync       IntentKind = "tag_sync"
	IntentFieldSync     IntentKind = "field_sync"
	IntentHandoffNotify IntentKind = "handoff_notify"
	IntentHistoryAppend IntentKind = "history_append"
)

// Intent is a single side-effect instruction. Every intent carries a unique
// ID so at-least-once consumers can deduplicate.
type Intent interface {
	IntentID() string
	IntentKind() IntentKind
	IntentCustomer() string
}

// TagSyncIntent asks the CRM to tag a customer with their inferred persona.
// Idempotent, last-write-wins.
type TagSyncIntent struct {
	ID         string
	CustomerID string
	Persona    Persona
}

func (i TagSyncIntent) IntentID() string       { return i.ID }
func (i TagSyncIntent) IntentKind() IntentKind { return IntentTagSync }
func (i TagSyncIntent) IntentCustomer() string { return i.CustomerID }

// FieldSyncIntent pushes extracted profile attributes to the CRM's custom
// fields. Idempotent, last-write-wins.
type FieldSyncIntent struct {
	ID         string
	CustomerID string
	Fields     map[string]string
}

func (i FieldSyncIntent) IntentID() string       { return i.ID }
func (i FieldSyncIntent) IntentKind() IntentKind { return IntentFieldSync }
func (i FieldSyncIntent) IntentCustomer() string { return i.CustomerID }

// HandoffNotifyIntent tells the staff notifier that a conversation left
// automated handling. At-least-once delivery is acceptable.
type HandoffNotifyIntent struct {
	ID         string
	CustomerID string
	Reason     string
	Message    string
}

func (i HandoffNotifyIntent) IntentID() string       { return i.ID }
func (i HandoffNotifyIntent) IntentKind() IntentKind { return IntentHandoffNotify }
func (i HandoffNotifyIntent) IntentCustomer() string { return i.CustomerID }

// HistoryAppendIntent appends one turn to the customer's conversation log.
type HistoryAppendIntent struct {
	ID         string
	CustomerID string
	Turn       Turn
}

func (i HistoryAppendIntent) IntentID() string       { return i.ID }
func (i HistoryAppendIntent) IntentKind() IntentKind { return IntentHistoryAppend }
func (i HistoryAppendIntent) IntentCustomer() string { return i.CustomerID }

// IntentBus routes intents from the orchestrator to registered consumers.
// Delivery is synchronous: Publish returns after every consumer for the
// intent's kind has run, so query endpoints never observe a half-applied turn.
type IntentBus interface {
	Publish(intent Intent)
	Subscribe(kind IntentKind, handler func(Intent))
}
