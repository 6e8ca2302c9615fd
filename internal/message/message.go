// Package message defines the identity and envelope types shared by every
// producer, queue, store, and pipeline stage in HeroMessaging.
package message

import (
	"time"

	"github.com/google/uuid"
)

// MessageID is the 128-bit immutable identity of a message. Two messages
// with the same MessageID are treated as duplicates by the inbox.
type MessageID uuid.UUID

// NewMessageID generates a fresh random MessageID.
func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

// ParseMessageID parses a MessageID from its canonical string form.
func ParseMessageID(s string) (MessageID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, err
	}
	return MessageID(id), nil
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero-value MessageID.
func (id MessageID) IsZero() bool {
	return id == MessageID{}
}

// Kind distinguishes the three message variants carried through the core.
type Kind int

const (
	KindCommand Kind = iota
	KindQuery
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Message is the abstract identity every command, query, and event
// implements. Implementations are immutable; WithCorrelation returns a copy.
type Message interface {
	ID() MessageID
	Kind() Kind
	Timestamp() time.Time
	CorrelationID() string
	CausationID() string
	Metadata() map[string]any

	// WithCorrelation returns a copy carrying correlationID/causationID,
	// or the receiver unchanged if both are empty (reference-equal per §4.10).
	WithCorrelation(correlationID, causationID string) Message
}

// Envelope is the common immutable base embedded by Command, Query, and
// Event. It is not itself a Message — each variant embeds it and supplies Kind().
type Envelope struct {
	id            MessageID
	timestamp     time.Time
	correlationID string
	causationID   string
	metadata      map[string]any
}

// NewEnvelope builds a fresh Envelope with a random MessageID and the
// current time.
func NewEnvelope(metadata map[string]any) Envelope {
	return Envelope{
		id:        NewMessageID(),
		timestamp: time.Now(),
		metadata:  metadata,
	}
}

func (e Envelope) ID() MessageID              { return e.id }
func (e Envelope) Timestamp() time.Time       { return e.timestamp }
func (e Envelope) CorrelationID() string      { return e.correlationID }
func (e Envelope) CausationID() string        { return e.causationID }
func (e Envelope) Metadata() map[string]any   { return e.metadata }

func (e Envelope) withCorrelation(correlationID, causationID string) Envelope {
	if correlationID == "" && causationID == "" {
		return e
	}
	cp := e
	cp.correlationID = correlationID
	cp.causationID = causationID
	return cp
}

// Command is a one-way instruction directed at exactly one handler.
type Command struct {
	Envelope
	Name    string
	Payload any
}

func NewCommand(name string, payload any) *Command {
	return &Command{Envelope: NewEnvelope(nil), Name: name, Payload: payload}
}

func (c *Command) Kind() Kind { return KindCommand }

func (c *Command) WithCorrelation(correlationID, causationID string) Message {
	if correlationID == "" && causationID == "" {
		return c
	}
	cp := *c
	cp.Envelope = c.Envelope.withCorrelation(correlationID, causationID)
	return &cp
}

// Query carries a response type witness R; handlers return (R, error).
type Query[R any] struct {
	Envelope
	Name    string
	Payload any
}

func NewQuery[R any](name string, payload any) *Query[R] {
	return &Query[R]{Envelope: NewEnvelope(nil), Name: name, Payload: payload}
}

func (q *Query[R]) Kind() Kind { return KindQuery }

func (q *Query[R]) WithCorrelation(correlationID, causationID string) Message {
	if correlationID == "" && causationID == "" {
		return q
	}
	cp := *q
	cp.Envelope = q.Envelope.withCorrelation(correlationID, causationID)
	return &cp
}

// Event announces that something happened; it may have zero or many handlers.
type Event struct {
	Envelope
	Name    string
	Payload any
}

func NewEvent(name string, payload any) *Event {
	return &Event{Envelope: NewEnvelope(nil), Name: name, Payload: payload}
}

func (e *Event) Kind() Kind { return KindEvent }

func (e *Event) WithCorrelation(correlationID, causationID string) Message {
	if correlationID == "" && causationID == "" {
		return e
	}
	cp := *e
	cp.Envelope = e.Envelope.withCorrelation(correlationID, causationID)
	return &cp
}
