package transport

import (
	"sync"

	"github.com/colabsync/colabsync/pkg/logging"
)

// Interceptor inspects messages in flight on a loopback network. Returning
// false drops the message.
type Interceptor func(*Message) bool

// Network is an in-process network connecting loopback endpoints. It is used
// for headless operation and tests.
type Network struct {
	// logger is the network logger.
	logger *logging.Logger
	// lock guards the fields below.
	lock sync.Mutex
	// endpoints maps peer names to their endpoints.
	endpoints map[string]*Endpoint
	// disconnected is the set of peers that are temporarily unreachable.
	disconnected map[string]bool
	// interceptor, if non-nil, filters messages in flight.
	interceptor Interceptor
}

// NewNetwork creates a new loopback network.
func NewNetwork(logger *logging.Logger) *Network {
	return &Network{
		logger:       logger,
		endpoints:    make(map[string]*Endpoint),
		disconnected: make(map[string]bool),
	}
}

// Endpoint creates and attaches an endpoint for the specified peer. Messages
// not selected by any collector are passed to the fallback handler, which may
// be nil. Attaching a peer name twice replaces the previous endpoint.
func (n *Network) Endpoint(peer string, fallback Handler) *Endpoint {
	endpoint := &Endpoint{
		network:    n,
		peer:       peer,
		fallback:   fallback,
		collectors: make(map[*Collector]bool),
	}
	n.lock.Lock()
	n.endpoints[peer] = endpoint
	n.lock.Unlock()
	return endpoint
}

// Disconnect makes a peer unreachable until Reconnect is called.
func (n *Network) Disconnect(peer string) {
	n.lock.Lock()
	n.disconnected[peer] = true
	n.lock.Unlock()
}

// Reconnect makes a disconnected peer reachable again.
func (n *Network) Reconnect(peer string) {
	n.lock.Lock()
	delete(n.disconnected, peer)
	n.lock.Unlock()
}

// SetInterceptor installs an interceptor for messages in flight. Passing nil
// removes any existing interceptor.
func (n *Network) SetInterceptor(interceptor Interceptor) {
	n.lock.Lock()
	n.interceptor = interceptor
	n.lock.Unlock()
}

// route resolves the destination endpoint for a message sent by the specified
// peer.
func (n *Network) route(from string, message *Message) (*Endpoint, bool, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.disconnected[from] || n.disconnected[message.To] {
		return nil, false, ErrUnreachable
	}
	target, ok := n.endpoints[message.To]
	if !ok || target.isClosed() {
		return nil, false, ErrUnreachable
	}
	if n.interceptor != nil && !n.interceptor(message) {
		return nil, false, nil
	}
	return target, true, nil
}

// available returns whether or not the peer is attached and connected.
func (n *Network) available(peer string) bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	endpoint, ok := n.endpoints[peer]
	return ok && !n.disconnected[peer] && !endpoint.isClosed()
}

// attached returns whether or not the peer has ever attached an endpoint.
func (n *Network) attached(peer string) bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	_, ok := n.endpoints[peer]
	return ok
}

// Endpoint is a loopback Transport implementation attached to a Network.
type Endpoint struct {
	// network is the parent network.
	network *Network
	// peer is the local peer name.
	peer string
	// fallback handles unselected messages.
	fallback Handler
	// lock guards the fields below.
	lock sync.Mutex
	// collectors is the set of active collectors.
	collectors map[*Collector]bool
	// closed indicates whether or not the endpoint has been closed.
	closed bool
}

// Local implements Transport.Local.
func (e *Endpoint) Local() string {
	return e.peer
}

// Send implements Transport.Send.
func (e *Endpoint) Send(message *Message) error {
	// Verify that we're still open.
	if e.isClosed() {
		return ErrClosed
	}

	// Stamp and copy the message so that the caller retains ownership of the
	// original.
	message.From = e.peer
	delivery := message.clone()

	// Resolve the destination.
	target, deliver, err := e.network.route(e.peer, delivery)
	if err != nil {
		e.network.logger.Tracef("Unable to route %s message from %s to %s: %v",
			delivery.Kind, delivery.From, delivery.To, err,
		)
		return err
	} else if !deliver {
		e.network.logger.Tracef("Dropped %s message from %s to %s",
			delivery.Kind, delivery.From, delivery.To,
		)
		return nil
	}

	// Deliver the message.
	target.receive(delivery)
	return nil
}

// receive dispatches an inbound message to matching collectors, falling back
// to the handler if none match.
func (e *Endpoint) receive(message *Message) {
	// Deliver to matching collectors while holding the lock so that delivery
	// order is preserved.
	e.lock.Lock()
	var matched bool
	for collector := range e.collectors {
		if collector.Matches(message) {
			collector.Deliver(message)
			matched = true
		}
	}
	fallback := e.fallback
	e.lock.Unlock()

	// Hand off unmatched messages. The fallback runs asynchronously since it
	// may itself send messages.
	if !matched {
		if fallback != nil {
			go fallback(message)
		} else {
			e.network.logger.Debugf("Discarding unhandled %s message from %s",
				message.Kind, message.From,
			)
		}
	}
}

// Subscribe implements Transport.Subscribe.
func (e *Endpoint) Subscribe(filter Filter) *Collector {
	var collector *Collector
	collector = NewCollector(filter, func() {
		e.lock.Lock()
		delete(e.collectors, collector)
		e.lock.Unlock()
	})
	e.lock.Lock()
	if !e.closed {
		e.collectors[collector] = true
	}
	e.lock.Unlock()
	return collector
}

// Available implements Transport.Available.
func (e *Endpoint) Available(peer string) bool {
	return e.network.available(peer)
}

// Supports implements Transport.Supports.
func (e *Endpoint) Supports(peer string) bool {
	return e.network.attached(peer)
}

// isClosed returns whether or not the endpoint has been closed.
func (e *Endpoint) isClosed() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.closed
}

// Close detaches the endpoint from the network. Existing collectors stop
// receiving messages and subsequent sends fail.
func (e *Endpoint) Close() error {
	e.lock.Lock()
	e.closed = true
	e.collectors = make(map[*Collector]bool)
	e.lock.Unlock()
	return nil
}
