// Package stream moves body bytes between a non-blocking transport and
// blocking handler code.
//
// ChunkWriter sits on the response side: handlers write to it like any
// io.Writer and it hands fixed-size frames to a FrameWriter. Handoff sits
// on the request side: the transport hands off buffers without blocking and
// a handler reads them back in order, or attaches a Listener to have them
// pushed.
package stream

import "errors"

var (
	// ErrStreamClosed is returned by writes after Close or Abort.
	ErrStreamClosed = errors.New("stream: closed")

	// ErrConcurrentRead is returned when a Handoff is read from two
	// goroutines at once.
	ErrConcurrentRead = errors.New("stream: concurrent read")

	// ErrListenerAttached is returned by Read once a Listener is attached,
	// and by a second SetListener.
	ErrListenerAttached = errors.New("stream: listener attached")
)
