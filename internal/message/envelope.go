package message

// AddressKind distinguishes point-to-point queues from fan-out topics.
type AddressKind int

const (
	AddressQueue AddressKind = iota
	AddressTopic
)

func (k AddressKind) String() string {
	if k == AddressTopic {
		return "topic"
	}
	return "queue"
}

// TransportAddress names a destination within the in-process transport.
// Queues are point-to-point; topics are fan-out.
type TransportAddress struct {
	Name string
	Type AddressKind
}

func QueueAddress(name string) TransportAddress { return TransportAddress{Name: name, Type: AddressQueue} }
func TopicAddress(name string) TransportAddress { return TransportAddress{Name: name, Type: AddressTopic} }

// TransportEnvelope is the wire-agnostic wrapper a Transport moves between
// producer and consumer, per §3: value-equality is not required, and
// WithHeader returns a copy (copy-on-write).
type TransportEnvelope struct {
	MessageType    string
	Body           []byte
	MessageID      string
	CorrelationID  string
	CausationID    string
	ConversationID string
	Headers        map[string]string
}

// WithHeader returns a copy of the envelope with header key set to value.
func (e TransportEnvelope) WithHeader(key, value string) TransportEnvelope {
	cp := e
	cp.Headers = make(map[string]string, len(e.Headers)+1)
	for k, v := range e.Headers {
		cp.Headers[k] = v
	}
	cp.Headers[key] = value
	return cp
}

// Header returns the header value for key and whether it was present.
func (e TransportEnvelope) Header(key string) (string, bool) {
	v, ok := e.Headers[key]
	return v, ok
}

// NewTransportEnvelope builds an envelope for msg addressed at messageType,
// carrying the already-serialized body.
func NewTransportEnvelope(messageType string, body []byte, msg Message) TransportEnvelope {
	return TransportEnvelope{
		MessageType:   messageType,
		Body:          body,
		MessageID:     msg.ID().String(),
		CorrelationID: msg.CorrelationID(),
		CausationID:   msg.CausationID(),
	}
}
