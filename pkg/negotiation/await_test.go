package negotiation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/colabsync/colabsync/pkg/progress"
	"github.com/colabsync/colabsync/pkg/transport"
)

// awaitResult is the result of an asynchronous await.
type awaitResult struct {
	message *transport.Message
	err     error
}

// newTestEndpoints creates a pair of connected loopback endpoints.
func newTestEndpoints() (*transport.Endpoint, *transport.Endpoint) {
	network := transport.NewNetwork(nil)
	return network.Endpoint("host", nil), network.Endpoint("peer", nil)
}

// TestAwaitMessage tests that waits yield messages that arrive.
func TestAwaitMessage(t *testing.T) {
	host, peer := newTestEndpoints()
	state, _ := newTestState(t, Options{})
	collector := host.Subscribe(transport.Match("reply", state.ID()))
	defer collector.Close()

	results := make(chan awaitResult, 1)
	go func() {
		message, err := state.Await(collector, time.Minute, true, "reply")
		results <- awaitResult{message, err}
	}()
	if err := peer.Send(&transport.Message{Kind: "reply", To: "host", NegotiationID: state.ID()}); err != nil {
		t.Fatal("unable to send reply:", err)
	}

	select {
	case result := <-results:
		if result.err != nil {
			t.Fatal("await failed:", result.err)
		} else if result.message.From != "peer" {
			t.Error("unexpected sender:", result.message.From)
		}
	case <-time.After(time.Second):
		t.Fatal("await did not return")
	}
}

// TestAwaitTimeout tests that timeouts are recorded as local failures.
func TestAwaitTimeout(t *testing.T) {
	host, _ := newTestEndpoints()
	clock := clockwork.NewFakeClock()
	state, spy := newTestState(t, Options{Clock: clock})
	collector := host.Subscribe(transport.Match("reply", state.ID()))
	defer collector.Close()

	results := make(chan awaitResult, 1)
	go func() {
		message, err := state.Await(collector, time.Minute, false, "version response")
		results <- awaitResult{message, err}
	}()

	// Keep advancing the clock until the wait expires. Advances that occur
	// before the timer is created have no effect on it.
	var result awaitResult
	deadline := time.After(time.Second)
	for waiting := true; waiting; {
		clock.Advance(time.Minute)
		select {
		case result = <-results:
			waiting = false
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("await did not time out")
		}
	}
	var cancellation *Cancellation
	if !errors.As(result.err, &cancellation) {
		t.Fatal("timeout did not yield cancellation:", result.err)
	} else if cancellation.NotifyPeer {
		t.Error("timeout requested peer notification")
	} else if !strings.Contains(cancellation.ErrorMessage, "version response") {
		t.Error("unexpected timeout message:", cancellation.ErrorMessage)
	}

	if outcome := state.Terminate(nil); outcome.Status != StatusError {
		t.Error("unexpected outcome after timeout:", outcome)
	}
	if len(spy.notified) != 0 {
		t.Error("peer notified after unnotified timeout")
	}
}

// TestAwaitRemoteCancellation tests that cancellation ends waits promptly.
func TestAwaitRemoteCancellation(t *testing.T) {
	host, _ := newTestEndpoints()
	state, _ := newTestState(t, Options{})
	collector := host.Subscribe(transport.Match("reply", state.ID()))
	defer collector.Close()

	results := make(chan awaitResult, 1)
	go func() {
		message, err := state.Await(collector, time.Hour, true, "reply")
		results <- awaitResult{message, err}
	}()
	state.RemoteCancel("")

	select {
	case result := <-results:
		if cause, ok := result.err.(*Cancellation); !ok || !cause.Remote {
			t.Error("unexpected await error:", result.err)
		}
	case <-time.After(time.Second):
		t.Fatal("await not preempted by cancellation")
	}
}

// TestAwaitSinkCancellation tests that external cancellation through the
// progress sink is sampled while waiting.
func TestAwaitSinkCancellation(t *testing.T) {
	host, _ := newTestEndpoints()
	sink := &progress.Monitor{}
	state, _ := newTestState(t, Options{Sink: sink, PollInterval: 10 * time.Millisecond})
	collector := host.Subscribe(transport.Match("reply", state.ID()))
	defer collector.Close()

	results := make(chan awaitResult, 1)
	go func() {
		message, err := state.Await(collector, time.Hour, true, "reply")
		results <- awaitResult{message, err}
	}()
	sink.SetCanceled(true)

	select {
	case result := <-results:
		if cause, ok := result.err.(*Cancellation); !ok || cause.Remote || cause.ErrorMessage != "" {
			t.Error("unexpected await error:", result.err)
		}
	case <-time.After(time.Second):
		t.Fatal("await did not observe sink cancellation")
	}
}

// TestAwaitAfterCancellation tests that waits fail immediately once canceled,
// even if a message is pending.
func TestAwaitAfterCancellation(t *testing.T) {
	host, peer := newTestEndpoints()
	state, _ := newTestState(t, Options{})
	collector := host.Subscribe(transport.Match("reply", state.ID()))
	defer collector.Close()
	if err := peer.Send(&transport.Message{Kind: "reply", To: "host", NegotiationID: state.ID()}); err != nil {
		t.Fatal("unable to send reply:", err)
	}
	state.LocalCancel("", false)
	if _, err := state.Await(collector, time.Hour, true, "reply"); err == nil {
		t.Error("await succeeded after cancellation")
	}
}
