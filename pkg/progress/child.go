package progress

import (
	"sync"
)

// Child is a Sink that reports progress through a parent sink while keeping
// its own cancellation flag. Cancellation of the parent is observed by the
// child, but cancellation of the child is never written back to the parent, so
// a parent can be shared by any number of children.
type Child struct {
	// parent is the parent sink.
	parent Sink
	// lock guards canceled.
	lock sync.Mutex
	// canceled is the child's own cancellation flag.
	canceled bool
}

// NewChild creates a new child of the specified parent sink.
func NewChild(parent Sink) *Child {
	return &Child{parent: parent}
}

// BeginTask implements Sink.BeginTask.
func (c *Child) BeginTask(label string, total int64) {
	c.parent.BeginTask(label, total)
}

// Worked implements Sink.Worked.
func (c *Child) Worked(units int64) {
	c.parent.Worked(units)
}

// IsCanceled implements Sink.IsCanceled.
func (c *Child) IsCanceled() bool {
	c.lock.Lock()
	canceled := c.canceled
	c.lock.Unlock()
	return canceled || c.parent.IsCanceled()
}

// SetCanceled implements Sink.SetCanceled. It only affects the child.
func (c *Child) SetCanceled(canceled bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.canceled = canceled
}

// Done implements Sink.Done.
func (c *Child) Done() {
	c.parent.Done()
}
