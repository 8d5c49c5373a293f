// Package transport defines the messaging interface through which negotiating
// peers communicate, along with an in-process loopback implementation.
package transport

// Kind identifies the type of a message.
type Kind string

// Cloner is implemented by payloads that carry mutable buffers. Transports
// clone such payloads on send so that senders may reuse their buffers.
type Cloner interface {
	// Clone returns a deep copy of the payload.
	Clone() any
}

// Message is the envelope for all negotiation traffic.
type Message struct {
	// Kind is the message type.
	Kind Kind
	// From is the sending peer. It is populated by the transport.
	From string
	// To is the receiving peer.
	To string
	// NegotiationID is the identifier of the negotiation to which the message
	// belongs. It may be empty for messages not tied to a negotiation.
	NegotiationID string
	// Payload is the kind-specific message content.
	Payload any
}

// clone creates a copy of the message suitable for delivery.
func (m *Message) clone() *Message {
	result := *m
	if cloner, ok := m.Payload.(Cloner); ok {
		result.Payload = cloner.Clone()
	}
	return &result
}

// Filter is a predicate used to select messages.
type Filter func(*Message) bool

// Match creates a filter selecting messages of the specified kind belonging
// to the specified negotiation. If negotiationID is empty, messages of the
// kind are selected regardless of negotiation.
func Match(kind Kind, negotiationID string) Filter {
	return func(message *Message) bool {
		return message.Kind == kind &&
			(negotiationID == "" || message.NegotiationID == negotiationID)
	}
}

// MatchFrom restricts a filter to messages sent by the specified peer.
func MatchFrom(peer string, filter Filter) Filter {
	return func(message *Message) bool {
		return message.From == peer && filter(message)
	}
}
