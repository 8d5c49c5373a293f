// Package progress provides the progress-reporting sinks that negotiations
// update during long-running phases and poll for user-initiated cancellation.
package progress

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/colabsync/colabsync/pkg/logging"
)

// Sink receives progress updates from a negotiation phase. Implementations
// must be safe for concurrent usage, since cancellation may be requested from
// a different Goroutine than the one reporting progress.
type Sink interface {
	// BeginTask starts a new task with the specified label and total number of
	// work units. A non-positive total indicates an unknown amount of work.
	BeginTask(label string, total int64)
	// Worked records completion of the specified number of work units.
	Worked(units int64)
	// IsCanceled returns whether or not cancellation has been requested.
	IsCanceled() bool
	// SetCanceled sets the cancellation flag.
	SetCanceled(canceled bool)
	// Done marks the current task as complete.
	Done()
}

// Snapshot is a static copy of a Monitor's state.
type Snapshot struct {
	// Label is the current task label.
	Label string
	// Total is the total number of work units for the current task.
	Total int64
	// Completed is the number of completed work units for the current task.
	Completed int64
	// Finished indicates whether or not the current task is done.
	Finished bool
	// Canceled indicates whether or not cancellation has been requested.
	Canceled bool
}

// String provides a human-readable representation of the snapshot, treating
// work units as bytes.
func (s Snapshot) String() string {
	if s.Total > 0 {
		return fmt.Sprintf("%s: %s of %s",
			s.Label, humanize.IBytes(uint64(s.Completed)), humanize.IBytes(uint64(s.Total)),
		)
	}
	return fmt.Sprintf("%s: %s", s.Label, humanize.IBytes(uint64(s.Completed)))
}

// Monitor is the standard Sink implementation. It tracks the current task and
// optionally logs task transitions. The zero value is ready for use.
type Monitor struct {
	// Logger, if non-nil, receives task transitions at debug level.
	Logger *logging.Logger
	// lock guards the fields below.
	lock sync.Mutex
	// snapshot is the current state.
	snapshot Snapshot
}

// BeginTask implements Sink.BeginTask.
func (m *Monitor) BeginTask(label string, total int64) {
	m.lock.Lock()
	m.snapshot.Label = label
	m.snapshot.Total = total
	m.snapshot.Completed = 0
	m.snapshot.Finished = false
	m.lock.Unlock()
	m.Logger.Debugf("Beginning task: %s", label)
}

// Worked implements Sink.Worked.
func (m *Monitor) Worked(units int64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.snapshot.Completed += units
}

// IsCanceled implements Sink.IsCanceled.
func (m *Monitor) IsCanceled() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.snapshot.Canceled
}

// SetCanceled implements Sink.SetCanceled.
func (m *Monitor) SetCanceled(canceled bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.snapshot.Canceled = canceled
}

// Done implements Sink.Done.
func (m *Monitor) Done() {
	m.lock.Lock()
	m.snapshot.Finished = true
	snapshot := m.snapshot
	m.lock.Unlock()
	m.Logger.Debugf("Finished task: %s", snapshot)
}

// Snapshot returns a copy of the monitor's current state.
func (m *Monitor) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.snapshot
}
