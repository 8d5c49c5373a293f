package stream

import (
	"errors"
	"io"
)

var (
	// ErrWritePreempted indicates that a write operation was preempted.
	ErrWritePreempted = errors.New("write preempted")
)

// preemptableWriter is an io.Writer implementation that checks for preemption
// before every write.
type preemptableWriter struct {
	// writer is the underlying writer.
	writer io.Writer
	// preempted is the channel that, when closed, indicates preemption.
	preempted <-chan struct{}
	// cause returns the error to report on preemption. It may be nil.
	cause func() error
}

// NewPreemptableWriter wraps an io.Writer and provides preemption capabilities
// for long copy operations. Once the preempted channel is closed, all writes
// fail with the error returned by cause, or with ErrWritePreempted if cause is
// nil or returns nil.
func NewPreemptableWriter(writer io.Writer, preempted <-chan struct{}, cause func() error) io.Writer {
	return &preemptableWriter{
		writer:    writer,
		preempted: preempted,
		cause:     cause,
	}
}

// Write implements io.Writer.Write.
func (w *preemptableWriter) Write(data []byte) (int, error) {
	// Check for preemption.
	select {
	case <-w.preempted:
		if w.cause != nil {
			if err := w.cause(); err != nil {
				return 0, err
			}
		}
		return 0, ErrWritePreempted
	default:
	}

	// Perform the write.
	return w.writer.Write(data)
}
