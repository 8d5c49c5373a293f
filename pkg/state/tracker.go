package state

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrTrackingTerminated indicates that tracking was terminated.
	ErrTrackingTerminated = errors.New("tracking terminated")
)

// Tracker provides index-based state tracking. Waiters block on a channel that
// is closed and replaced on every change, which allows waits to be preempted
// by context cancellation.
type Tracker struct {
	// lock guards the fields below.
	lock sync.Mutex
	// index is the current state index.
	index uint64
	// changed is closed when the state index changes or tracking terminates.
	changed chan struct{}
	// poisoned indicates whether or not tracking has been terminated.
	poisoned bool
}

// NewTracker creates a new tracker instance with state index 1.
func NewTracker() *Tracker {
	return &Tracker{
		index:   1,
		changed: make(chan struct{}),
	}
}

// Terminate terminates tracking.
func (t *Tracker) Terminate() {
	// Acquire the state lock and ensure its release.
	t.lock.Lock()
	defer t.lock.Unlock()

	// Mark the state as poisoned and wake any waiters.
	if !t.poisoned {
		t.poisoned = true
		close(t.changed)
	}
}

// NotifyOfChange increments the state index and notifies waiters.
func (t *Tracker) NotifyOfChange() {
	// Acquire the state lock and ensure its release.
	t.lock.Lock()
	defer t.lock.Unlock()

	// If tracking has been terminated, then there's nobody left to notify.
	if t.poisoned {
		return
	}

	// Increment the state index and broadcast the change.
	t.index++
	close(t.changed)
	t.changed = make(chan struct{})
}

// Index returns the current state index.
func (t *Tracker) Index() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.index
}

// WaitForChange waits for a state index change from the previous index. It
// returns the new index, or the previous index along with an error if the wait
// is preempted by the context or by tracking termination.
func (t *Tracker) WaitForChange(ctx context.Context, previousIndex uint64) (uint64, error) {
	for {
		// Check the current state.
		t.lock.Lock()
		if t.poisoned {
			t.lock.Unlock()
			return previousIndex, ErrTrackingTerminated
		} else if t.index != previousIndex {
			index := t.index
			t.lock.Unlock()
			return index, nil
		}
		changed := t.changed
		t.lock.Unlock()

		// Wait for a change or preemption.
		select {
		case <-changed:
		case <-ctx.Done():
			return previousIndex, ctx.Err()
		}
	}
}
