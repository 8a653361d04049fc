package stream

import (
	"sync"
	"sync/atomic"
)

// DefaultChunkSize is used when a ChunkWriter is created with a size <= 0.
const DefaultChunkSize = 8192

// FrameWriter receives frames from a ChunkWriter. Ownership of the slice
// passes to the FrameWriter; the ChunkWriter never touches it again.
type FrameWriter interface {
	WriteFrame(p []byte) error
}

// FrameWriterFunc adapts a function to FrameWriter.
type FrameWriterFunc func(p []byte) error

// WriteFrame calls f(p).
func (f FrameWriterFunc) WriteFrame(p []byte) error {
	return f(p)
}

// ChunkWriter buffers writes and emits them as frames of exactly the chunk
// size, plus a shorter final frame on Flush or Close.
type ChunkWriter struct {
	mu      sync.Mutex
	dst     FrameWriter
	size    int
	buf     []byte
	written int64
	closed  bool
	aborted atomic.Bool
}

// NewChunkWriter returns a ChunkWriter emitting frames of chunkSize bytes
// to dst.
func NewChunkWriter(dst FrameWriter, chunkSize int) *ChunkWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &ChunkWriter{dst: dst, size: chunkSize}
}

// Write implements io.Writer. It returns ErrStreamClosed after Close or
// Abort, and the FrameWriter's error if a frame could not be delivered.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	if w.aborted.Load() {
		return 0, ErrStreamClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrStreamClosed
	}

	n := 0
	for len(p) > 0 {
		if w.aborted.Load() {
			w.buf = nil
			return n, ErrStreamClosed
		}

		if w.buf == nil {
			w.buf = make([]byte, 0, w.size)
		}

		c := copy(w.buf[len(w.buf):w.size], p)
		w.buf = w.buf[:len(w.buf)+c]
		p = p[c:]
		n += c
		w.written += int64(c)

		if len(w.buf) == w.size {
			if err := w.emit(); err != nil {
				return n, err
			}
		}
	}

	return n, nil
}

// Flush emits the buffered bytes as a frame, if there are any.
func (w *ChunkWriter) Flush() error {
	if w.aborted.Load() {
		return ErrStreamClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrStreamClosed
	}

	return w.emit()
}

// Close flushes and releases the buffer. Closing twice is a no-op.
func (w *ChunkWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.aborted.Load() {
		w.buf = nil
		return ErrStreamClosed
	}

	return w.emit()
}

// Abort makes every later write fail with ErrStreamClosed and drops any
// buffered bytes. It is safe to call from any goroutine, including while
// a Write is blocked in the FrameWriter.
func (w *ChunkWriter) Abort() {
	w.aborted.Store(true)
}

// Aborted reports whether Abort was called.
func (w *ChunkWriter) Aborted() bool {
	return w.aborted.Load()
}

// Written returns the number of bytes accepted by Write.
func (w *ChunkWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.written
}

// emit hands the current buffer to dst. w.mu must be held.
func (w *ChunkWriter) emit() error {
	if len(w.buf) == 0 {
		return nil
	}

	frame := w.buf
	w.buf = nil

	return w.dst.WriteFrame(frame)
}
