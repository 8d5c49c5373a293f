package stream

import (
	"io"
)

// Auditor is a callback type that receives written byte counts from write
// operations. Auditor implementations should be fast since they're invoked
// inline with every write.
type Auditor func(int64)

// auditWriter is an io.Writer that implements write operation auditing.
type auditWriter struct {
	// writer is the underlying writer.
	writer io.Writer
	// auditor is the auditing callback.
	auditor Auditor
}

// NewAuditWriter creates a new io.Writer that invokes an auditing callback with
// written byte counts. If auditor is nil, then this function will return writer
// unmodified. Failed writes are audited with the number of bytes that were
// actually written.
func NewAuditWriter(writer io.Writer, auditor Auditor) io.Writer {
	if auditor == nil {
		return writer
	}
	return &auditWriter{writer, auditor}
}

// Write implements io.Writer.Write.
func (w *auditWriter) Write(buffer []byte) (int, error) {
	result, err := w.writer.Write(buffer)
	if result > 0 {
		w.auditor(int64(result))
	}
	return result, err
}
