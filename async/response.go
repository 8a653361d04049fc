package async

import (
	"net/http"
	"sync"

	"github.com/vitalvas/restmux/stream"
)

// Response is the handler's view of the outbound response. It satisfies
// http.ResponseWriter so standard encoders can write to it.
type Response struct {
	mu        sync.Mutex
	header    http.Header
	status    int
	committed bool
	err       error
	transport Transport
	writer    *stream.ChunkWriter
}

// Header returns the header map. Changes after commit have no effect.
func (r *Response) Header() http.Header {
	return r.header
}

// WriteHeader commits the status and headers. Later calls are ignored.
func (r *Response) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.committed {
		return
	}

	r.status = status
	r.commitLocked()
}

// Write commits a 200 status if needed and buffers p for framing.
func (r *Response) Write(p []byte) (int, error) {
	if err := r.commit(); err != nil {
		return 0, err
	}

	return r.writer.Write(p)
}

// Flush sends buffered bytes to the transport now.
func (r *Response) Flush() error {
	if err := r.commit(); err != nil {
		return err
	}

	return r.writer.Flush()
}

// Committed reports whether headers were sent.
func (r *Response) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.committed
}

// Status returns the response status.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

// Written returns the number of body bytes accepted so far.
func (r *Response) Written() int64 {
	return r.writer.Written()
}

// Err returns the error from sending headers, if any.
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

func (r *Response) commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.committed {
		r.commitLocked()
	}

	return r.err
}

func (r *Response) commitLocked() {
	r.committed = true

	if r.writer.Aborted() {
		r.err = stream.ErrStreamClosed
		return
	}

	r.err = r.transport.SendHeaders(r.status, r.header.Clone())
}
