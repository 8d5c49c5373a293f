package progress

import (
	"strings"
	"sync"
	"testing"
)

// TestMonitorTask tests task progress accounting.
func TestMonitorTask(t *testing.T) {
	monitor := &Monitor{}
	monitor.BeginTask("receiving archive", 2048)

	// Report work concurrently.
	var group sync.WaitGroup
	for i := 0; i < 4; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			monitor.Worked(256)
		}()
	}
	group.Wait()
	monitor.Done()

	snapshot := monitor.Snapshot()
	if snapshot.Completed != 1024 {
		t.Error("unexpected completed units:", snapshot.Completed)
	}
	if !snapshot.Finished {
		t.Error("task not marked finished")
	}
	if !strings.Contains(snapshot.String(), "1.0 KiB of 2.0 KiB") {
		t.Error("unexpected snapshot description:", snapshot.String())
	}

	// Beginning a new task resets progress.
	monitor.BeginTask("next", 0)
	if s := monitor.Snapshot(); s.Completed != 0 || s.Finished {
		t.Error("task state not reset")
	}
}

// TestMonitorCancellation tests the cancellation flag.
func TestMonitorCancellation(t *testing.T) {
	monitor := &Monitor{}
	if monitor.IsCanceled() {
		t.Fatal("new monitor is canceled")
	}
	monitor.SetCanceled(true)
	if !monitor.IsCanceled() {
		t.Error("cancellation not recorded")
	}
}

// TestChildCancellation tests that children observe parent cancellation
// without leaking their own.
func TestChildCancellation(t *testing.T) {
	parent := &Monitor{}
	first, second := NewChild(parent), NewChild(parent)

	// Child cancellation stays local.
	first.SetCanceled(true)
	if !first.IsCanceled() {
		t.Error("child cancellation not recorded")
	}
	if parent.IsCanceled() || second.IsCanceled() {
		t.Error("child cancellation leaked")
	}

	// Parent cancellation reaches every child.
	parent.SetCanceled(true)
	if !second.IsCanceled() {
		t.Error("parent cancellation not observed")
	}

	// Progress is forwarded.
	second.BeginTask("sending archive", 10)
	second.Worked(4)
	if snapshot := parent.Snapshot(); snapshot.Label != "sending archive" || snapshot.Completed != 4 {
		t.Error("progress not forwarded:", snapshot)
	}
}
