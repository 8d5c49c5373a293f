package negotiation

import (
	"fmt"
	"time"

	"github.com/colabsync/colabsync/pkg/transport"
)

// Await waits for a message from the collector. The wait ends early if a
// cancellation cause is recorded, whether directly or through the progress
// sink, which is sampled at the poll interval. If the timeout elapses first, a
// local failure describing what was awaited is recorded, notifying the peer
// only if notifyOnTimeout is set. On failure, the recorded cause is returned.
func (s *State) Await(collector *transport.Collector, timeout time.Duration, notifyOnTimeout bool, what string) (*transport.Message, error) {
	// Create the timeout timer and the polling ticker.
	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()
	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Wait for a message.
	for {
		// Cancellation takes precedence over pending messages.
		if err := s.Check(); err != nil {
			return nil, err
		}

		// Check for a pending message.
		if message, ok := collector.Poll(); ok {
			s.logger.Tracef("Received %s message from %s", message.Kind, message.From)
			return message, nil
		}

		// Wait for something to happen.
		select {
		case <-collector.Ready():
		case <-s.canceled:
		case <-ticker.Chan():
		case <-timer.Chan():
			s.LocalCancel(fmt.Sprintf("timed out waiting for %s", what), notifyOnTimeout)
			return nil, s.Check()
		}
	}
}
