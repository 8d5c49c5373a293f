package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

// trackerTestTimeout prevents tracker tests from timing out. It also sets an
// indirect performance boundary on update detection time.
const trackerTestTimeout = 1 * time.Second

// TestTracker tests Tracker.
func TestTracker(t *testing.T) {
	// Create a tracker.
	tracker := NewTracker()

	// Create a channel for Goroutine communication.
	handoff := make(chan bool)

	// Create a cancellable context that we can use to preempt waiting. Ensure
	// that it's cancelled by the time we return.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start a Goroutine with which we'll coordinate.
	go func() {
		// Wait indefinitely for a change from the initial tracker state (1).
		firstState, err := tracker.WaitForChange(context.Background(), 1)
		if err != nil || firstState != 2 {
			handoff <- false
			return
		}
		handoff <- true

		// Perform a preempted wait and ensure that the state doesn't change.
		secondState, err := tracker.WaitForChange(ctx, firstState)
		if err != context.Canceled || secondState != firstState {
			handoff <- false
			return
		}
		handoff <- true

		// Wait for termination and ensure that the state doesn't change.
		finalState, err := tracker.WaitForChange(context.Background(), secondState)
		handoff <- (finalState == firstState && errors.Is(err, ErrTrackingTerminated))
	}()

	// Notify of a change and wait for a response.
	tracker.NotifyOfChange()
	select {
	case value := <-handoff:
		if !value {
			t.Fatal("received failure on state tracking")
		}
	case <-time.After(trackerTestTimeout):
		t.Fatal("timeout failure on state tracking")
	}

	// Preempt the second wait.
	cancel()
	select {
	case value := <-handoff:
		if !value {
			t.Fatal("received failure on preempted state tracking")
		}
	case <-time.After(trackerTestTimeout):
		t.Fatal("timeout failure on preempted state tracking")
	}

	// Terminate tracking.
	tracker.Terminate()
	select {
	case value := <-handoff:
		if !value {
			t.Fatal("received failure on tracking termination")
		}
	case <-time.After(trackerTestTimeout):
		t.Fatal("timeout failure on tracking termination")
	}

	// Ensure that notifications after termination are ignored.
	tracker.NotifyOfChange()
	if tracker.Index() != 2 {
		t.Error("state index changed after termination")
	}
}

// TestTrackerStaleIndex tests that waiting with a stale index returns
// immediately.
func TestTrackerStaleIndex(t *testing.T) {
	tracker := NewTracker()
	tracker.NotifyOfChange()
	tracker.NotifyOfChange()
	if index, err := tracker.WaitForChange(context.Background(), 1); err != nil {
		t.Fatal("wait with stale index failed:", err)
	} else if index != 3 {
		t.Error("unexpected state index:", index)
	}
}
