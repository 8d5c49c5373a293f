package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestAuditWriter tests that audit writers report written byte counts.
func TestAuditWriter(t *testing.T) {
	var total int64
	buffer := &bytes.Buffer{}
	writer := NewAuditWriter(buffer, func(count int64) { total += count })
	if _, err := io.Copy(writer, strings.NewReader("some audited content")); err != nil {
		t.Fatal("unable to copy content:", err)
	}
	if total != int64(buffer.Len()) {
		t.Error("audited byte count mismatch:", total, "!=", buffer.Len())
	}
	if NewAuditWriter(buffer, nil) != io.Writer(buffer) {
		t.Error("nil auditor did not return underlying writer")
	}
}

// TestPreemptableWriter tests preemption with and without a cause.
func TestPreemptableWriter(t *testing.T) {
	preempted := make(chan struct{})
	cause := errors.New("canceled by user")
	writer := NewPreemptableWriter(io.Discard, preempted, func() error { return cause })
	if _, err := writer.Write([]byte("before")); err != nil {
		t.Fatal("write before preemption failed:", err)
	}
	close(preempted)
	if _, err := writer.Write([]byte("after")); err != cause {
		t.Error("unexpected error after preemption:", err)
	}
	if _, err := NewPreemptableWriter(io.Discard, preempted, nil).Write([]byte("x")); err != ErrWritePreempted {
		t.Error("unexpected error without cause:", err)
	}
}

// TestChunkWriter tests chunk grouping and trailing flushes.
func TestChunkWriter(t *testing.T) {
	var chunks []string
	writer := NewChunkWriter(4, func(chunk []byte) error {
		chunks = append(chunks, string(chunk))
		return nil
	})
	for _, piece := range []string{"ab", "cdefg", "hijkl", "m"} {
		if _, err := writer.Write([]byte(piece)); err != nil {
			t.Fatal("unable to write:", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal("unable to close writer:", err)
	}
	expected := []string{"abcd", "efgh", "ijkl", "m"}
	if diff := cmp.Diff(expected, chunks); diff != "" {
		t.Error("chunk mismatch (-want +got):\n", diff)
	}
	if writer.Chunks() != 4 {
		t.Error("unexpected chunk count:", writer.Chunks())
	}
	if _, err := writer.Write([]byte("late")); err == nil {
		t.Error("write after close succeeded")
	}
}

// TestChunkWriterEmitFailure tests that emission failures are sticky.
func TestChunkWriterEmitFailure(t *testing.T) {
	failure := errors.New("emit failed")
	writer := NewChunkWriter(2, func([]byte) error { return failure })
	if _, err := writer.Write([]byte("abc")); err != failure {
		t.Error("unexpected write error:", err)
	}
	if err := writer.Flush(); err != failure {
		t.Error("unexpected flush error:", err)
	}
}
