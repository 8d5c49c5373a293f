package transport

import (
	"sync"
)

// Collector queues messages selected by a filter. Collectors are created via
// Transport.Subscribe and must be closed once they're no longer needed.
type Collector struct {
	// filter selects the messages that the collector receives.
	filter Filter
	// ready is signaled whenever the queue becomes non-empty.
	ready chan struct{}
	// unsubscribe detaches the collector from its transport.
	unsubscribe func()
	// closeOnce guards closure.
	closeOnce sync.Once
	// lock guards the fields below.
	lock sync.Mutex
	// queue is the pending message queue.
	queue []*Message
	// closed indicates whether or not the collector has been closed.
	closed bool
}

// NewCollector creates a new unattached collector. It is intended for
// Transport implementations. The unsubscribe callback may be nil.
func NewCollector(filter Filter, unsubscribe func()) *Collector {
	return &Collector{
		filter:      filter,
		ready:       make(chan struct{}, 1),
		unsubscribe: unsubscribe,
	}
}

// Matches returns whether or not the collector's filter selects the message.
func (c *Collector) Matches(message *Message) bool {
	return c.filter(message)
}

// Deliver enqueues a message. Messages delivered after closure are discarded.
func (c *Collector) Deliver(message *Message) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, message)
	c.signal()
}

// signal performs a non-blocking readiness notification. The lock must be
// held.
func (c *Collector) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that is signaled when messages may be available.
// Receivers should call Poll after each signal until it reports no message.
func (c *Collector) Ready() <-chan struct{} {
	return c.ready
}

// Poll dequeues the oldest pending message, if any.
func (c *Collector) Poll() (*Message, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	message := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	if len(c.queue) > 0 {
		c.signal()
	}
	return message, true
}

// Pending returns the number of queued messages.
func (c *Collector) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.queue)
}

// Close detaches the collector from its transport and discards any pending
// messages. It is safe to call multiple times.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.lock.Lock()
		c.closed = true
		c.queue = nil
		c.lock.Unlock()
	})
}
