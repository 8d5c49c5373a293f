package stream

import (
	"errors"
)

// ChunkEmitter is a callback that receives fixed-size chunks from a
// ChunkWriter. The chunk buffer is reused after the callback returns, so
// emitters must copy it if they need to retain it.
type ChunkEmitter func([]byte) error

// ChunkWriter is an io.Writer that groups written data into chunks of a fixed
// size, emitting each chunk once it's full. Any trailing partial chunk is
// emitted by Flush. ChunkWriter is not safe for concurrent usage.
type ChunkWriter struct {
	// buffer is the pending chunk.
	buffer []byte
	// emit is the chunk callback.
	emit ChunkEmitter
	// chunks is the number of chunks emitted so far.
	chunks int
	// err is the first emission error encountered, if any.
	err error
}

// NewChunkWriter creates a new chunk writer with the specified chunk size. If
// size is not positive, it panics.
func NewChunkWriter(size int, emit ChunkEmitter) *ChunkWriter {
	if size <= 0 {
		panic("non-positive chunk size")
	}
	return &ChunkWriter{
		buffer: make([]byte, 0, size),
		emit:   emit,
	}
}

// Write implements io.Writer.Write.
func (w *ChunkWriter) Write(data []byte) (int, error) {
	// Once an emission has failed, the writer is unusable.
	if w.err != nil {
		return 0, w.err
	}

	// Fill and emit chunks until we've consumed the input.
	var written int
	for len(data) > 0 {
		available := cap(w.buffer) - len(w.buffer)
		if available > len(data) {
			available = len(data)
		}
		w.buffer = append(w.buffer, data[:available]...)
		data = data[available:]
		written += available
		if len(w.buffer) == cap(w.buffer) {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}

	// Success.
	return written, nil
}

// flush emits the pending chunk, if any.
func (w *ChunkWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}
	if err := w.emit(w.buffer); err != nil {
		w.err = err
		return err
	}
	w.chunks++
	w.buffer = w.buffer[:0]
	return nil
}

// Flush emits any trailing partial chunk.
func (w *ChunkWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.flush()
}

// Chunks returns the number of chunks emitted so far.
func (w *ChunkWriter) Chunks() int {
	return w.chunks
}

// errChunkWriterClosed is returned by writes to a closed chunk writer.
var errChunkWriterClosed = errors.New("chunk writer closed")

// Close flushes any trailing partial chunk and marks the writer as closed.
func (w *ChunkWriter) Close() error {
	err := w.Flush()
	if w.err == nil {
		w.err = errChunkWriterClosed
	}
	return err
}
