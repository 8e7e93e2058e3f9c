package domain

import "time"

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerAgent    Speaker = "agent"
	SpeakerSystem   Speaker = "system"
)

// Turn is one entry in a customer's conversation history. Turns are
// append-only and strictly ordered by arrival; Seq is assigned by the history
// store and never rewritten.
type Turn struct {
	Seq       int64     `json:"seq"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is a platform event normalized by a transport channel.
type InboundMessage struct {
	Channel    string
	CustomerID string
	Text       string
	Timestamp  time.Time
}

// ReplyOutcome classifies how a reply was produced.
type ReplyOutcome string

const (
	OutcomeGenerated ReplyOutcome = "generated"
	OutcomeFallback  ReplyOutcome = "fallback"
	OutcomeHandoff   ReplyOutcome = "handoff"
)

// Reply is the synchronous result of processing one inbound message.
type Reply struct {
	Text    string
	Outcome ReplyOutcome
}
