package transport

import (
	"errors"
)

var (
	// ErrUnreachable indicates that a peer can't be reached.
	ErrUnreachable = errors.New("peer unreachable")
	// ErrClosed indicates that a transport has been closed.
	ErrClosed = errors.New("transport closed")
)

// Handler processes messages that no collector selected.
type Handler func(*Message)

// Transport is the interface through which negotiations exchange messages.
// Implementations must be safe for concurrent usage. Delivery order between a
// pair of peers is preserved, but delivery itself is best-effort.
type Transport interface {
	// Local returns the identity of the local peer.
	Local() string
	// Send transmits a message to the peer named by the message's To field,
	// setting its From field to the local peer.
	Send(message *Message) error
	// Subscribe creates a collector receiving all subsequently arriving
	// messages selected by the filter.
	Subscribe(filter Filter) *Collector
	// Available returns whether or not the peer is currently reachable.
	Available(peer string) bool
	// Supports returns whether or not the peer runs colabsync at all, as
	// opposed to merely being reachable.
	Supports(peer string) bool
}
