package transport

import (
	"time"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

// envelopeMessage adapts a wire-level TransportEnvelope to the
// message.Message interface so it can travel through internal/queue's
// generic, priority-aware channel queue. The envelope is already the unit
// of transport at this layer; Kind is fixed to KindEvent since a
// TransportEnvelope carries no command/query/event distinction of its own.
type envelopeMessage struct {
	env message.TransportEnvelope
	id  message.MessageID
	ts  time.Time
}

func wrapEnvelope(env message.TransportEnvelope, clock config.TimeSource) *envelopeMessage {
	id, err := message.ParseMessageID(env.MessageID)
	if err != nil {
		id = message.NewMessageID()
	}
	return &envelopeMessage{env: env, id: id, ts: clock.Now()}
}

func (e *envelopeMessage) ID() message.MessageID       { return e.id }
func (e *envelopeMessage) Kind() message.Kind          { return message.KindEvent }
func (e *envelopeMessage) Timestamp() time.Time        { return e.ts }
func (e *envelopeMessage) CorrelationID() string       { return e.env.CorrelationID }
func (e *envelopeMessage) CausationID() string         { return e.env.CausationID }
func (e *envelopeMessage) Metadata() map[string]any    { return nil }

func (e *envelopeMessage) WithCorrelation(correlationID, causationID string) message.Message {
	if correlationID == "" && causationID == "" {
		return e
	}
	cp := *e
	cp.env.CorrelationID = correlationID
	cp.env.CausationID = causationID
	return &cp
}

func (e *envelopeMessage) envelope() message.TransportEnvelope { return e.env }
