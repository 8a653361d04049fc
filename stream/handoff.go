package stream

import (
	"io"
	"sync"
	"sync/atomic"
)

// Listener receives a Handoff's buffers in push mode. Any callback may be
// nil.
type Listener struct {
	OnData     func(p []byte)
	OnComplete func()
	OnError    func(err error)
}

// Handoff is a single-producer, single-consumer byte queue. HandOff never
// blocks; Read blocks until data arrives or the producer closes.
type Handoff struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	current  []byte
	buffered int
	closed   bool
	err      error
	listener *Listener

	// deliver serializes listener callbacks so replayed buffers are seen
	// before live ones.
	deliver sync.Mutex
	reading atomic.Bool
}

// NewHandoff returns an empty, open Handoff.
func NewHandoff() *Handoff {
	h := &Handoff{}
	h.cond = sync.NewCond(&h.mu)

	return h
}

// HandOff queues p for the reader. The producer must not reuse p. Empty
// buffers are ignored. It returns ErrStreamClosed after Close.
func (h *Handoff) HandOff(p []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrStreamClosed
	}

	if len(p) == 0 {
		h.mu.Unlock()
		return nil
	}

	if l := h.listener; l != nil {
		h.mu.Unlock()

		h.deliver.Lock()
		defer h.deliver.Unlock()
		if l.OnData != nil {
			l.OnData(p)
		}

		return nil
	}

	h.queue = append(h.queue, p)
	h.buffered += len(p)
	h.mu.Unlock()
	h.cond.Signal()

	return nil
}

// Close marks the end of the stream. The reader gets io.EOF once every
// queued byte has been read.
func (h *Handoff) Close() error {
	h.CloseWithError(nil)
	return nil
}

// CloseWithError ends the stream with err, which the reader gets after the
// queue drains. A nil err is the same as Close. Only the first close
// counts.
func (h *Handoff) CloseWithError(err error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.err = err
	l := h.listener
	h.mu.Unlock()
	h.cond.Broadcast()

	if l != nil {
		h.deliver.Lock()
		defer h.deliver.Unlock()
		finish(l, err)
	}
}

// Read implements io.Reader. Only one goroutine may read at a time.
func (h *Handoff) Read(p []byte) (int, error) {
	if !h.reading.CompareAndSwap(false, true) {
		return 0, ErrConcurrentRead
	}
	defer h.reading.Store(false)

	if len(p) == 0 {
		return 0, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for len(h.current) == 0 {
		if h.listener != nil {
			return 0, ErrListenerAttached
		}

		if len(h.queue) > 0 {
			h.current = h.queue[0]
			h.queue[0] = nil
			h.queue = h.queue[1:]
			continue
		}

		if h.closed {
			if h.err != nil {
				return 0, h.err
			}
			return 0, io.EOF
		}

		h.cond.Wait()
	}

	n := copy(p, h.current)
	h.current = h.current[n:]
	h.buffered -= n

	return n, nil
}

// SetListener switches the Handoff to push mode. Buffers already queued
// are replayed to l in order, then later hand-offs go straight to it. If
// the stream is already closed, OnComplete or OnError follows the replay.
// A blocked Read returns ErrListenerAttached.
func (h *Handoff) SetListener(l Listener) error {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	if h.listener != nil {
		h.mu.Unlock()
		return ErrListenerAttached
	}

	h.listener = &l

	pending := make([][]byte, 0, len(h.queue)+1)
	if len(h.current) > 0 {
		pending = append(pending, h.current)
	}
	pending = append(pending, h.queue...)
	h.current = nil
	h.queue = nil
	h.buffered = 0

	closed, err := h.closed, h.err
	h.mu.Unlock()
	h.cond.Broadcast()

	for _, p := range pending {
		if l.OnData != nil {
			l.OnData(p)
		}
	}

	if closed {
		finish(&l, err)
	}

	return nil
}

// Buffered returns the number of bytes queued and not yet read.
func (h *Handoff) Buffered() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.buffered
}

// Closed reports whether the producer has closed the stream.
func (h *Handoff) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

func finish(l *Listener, err error) {
	switch {
	case err != nil && l.OnError != nil:
		l.OnError(err)
	case err == nil && l.OnComplete != nil:
		l.OnComplete()
	}
}
