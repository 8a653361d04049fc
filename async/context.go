// Package async ties one request's lifecycle to the transport that carries
// it. The transport feeds body events into a Context and the handler reads
// the request body and writes the response through the same Context from
// its own goroutine.
package async

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/stream"
)

// ErrCanceled is the completion error used when Cancel is given nil.
var ErrCanceled = errors.New("async: request canceled")

// Transport is the event-loop side of a request. Every method is called
// from the handler's goroutine except ResponseComplete, which may also be
// called from the goroutine that calls Cancel.
type Transport interface {
	// SendHeaders commits the status line and headers.
	SendHeaders(status int, header http.Header) error
	// WriteFrame sends one body frame. Ownership of p passes to the
	// transport. It must return once the exchange is canceled.
	WriteFrame(p []byte) error
	// ResponseComplete is called exactly once when the exchange ends.
	ResponseComplete(err error)
}

// Head is what the transport knows once request headers arrive.
type Head struct {
	Method     string
	Path       string
	Header     http.Header
	RemoteAddr string
	Host       string
	Scheme     string
	Params     map[string]string
	// ContentType is the negotiated response type.
	ContentType mediatype.MediaType
}

// Option configures a Context.
type Option func(*options)

type options struct {
	parent    context.Context
	chunkSize int
	id        string
}

// WithParent sets the context the request context derives from.
func WithParent(ctx context.Context) Option {
	return func(o *options) { o.parent = ctx }
}

// WithChunkSize sets the response frame size.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithID overrides the generated request ID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// Context is the per-request state shared by the transport and the
// handler.
type Context struct {
	id        string
	transport Transport
	request   *Request
	response  *Response
	chunkSize int

	ctx    context.Context
	cancel context.CancelCauseFunc

	once      sync.Once
	done      chan struct{}
	detached  bool
	mu        sync.Mutex
	err       error
	canceled  error
	listeners []func(error)
}

// New creates the Context for a request whose head has arrived.
func New(t Transport, head Head, opts ...Option) *Context {
	o := options{parent: context.Background(), chunkSize: stream.DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}

	if o.id == "" {
		o.id = uuid.NewString()
	}

	header := head.Header
	if header == nil {
		header = http.Header{}
	}

	c := &Context{
		id:        o.id,
		transport: t,
		chunkSize: o.chunkSize,
		done:      make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancelCause(o.parent)

	c.request = &Request{
		Method:      head.Method,
		Path:        head.Path,
		Header:      header,
		RemoteAddr:  head.RemoteAddr,
		Host:        head.Host,
		Scheme:      head.Scheme,
		Params:      head.Params,
		ContentType: head.ContentType,
		Body:        stream.NewHandoff(),
		ctx:         c,
	}

	c.response = &Response{
		header:    http.Header{},
		status:    http.StatusOK,
		transport: t,
	}
	c.response.writer = stream.NewChunkWriter(t, o.chunkSize)

	return c
}

// ID returns the request ID.
func (c *Context) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.id
}

// SetID replaces the request ID, e.g. with one propagated by the client.
func (c *Context) SetID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = id
}

// Request returns the request view.
func (c *Context) Request() *Request {
	return c.request
}

// Response returns the response view.
func (c *Context) Response() *Response {
	return c.response
}

// Context returns a context.Context that is canceled when the exchange
// completes or is canceled.
func (c *Context) Context() context.Context {
	return c.ctx
}

// OnBodyChunk hands a request body buffer to the reader. The transport
// must not reuse p.
func (c *Context) OnBodyChunk(p []byte) error {
	return c.request.Body.HandOff(p)
}

// OnBodyComplete marks the end of the request body.
func (c *Context) OnBodyComplete() {
	c.request.Body.Close()
}

// OnBodyError ends the request body with err.
func (c *Context) OnBodyError(err error) {
	c.request.Body.CloseWithError(err)
}

// Cancel aborts the exchange, typically because the client went away. A
// blocked body reader sees io.EOF, later response writes fail, and the
// Context completes with err.
func (c *Context) Cancel(err error) {
	if err == nil {
		err = ErrCanceled
	}

	c.mu.Lock()
	c.canceled = err
	c.mu.Unlock()

	c.request.Body.Close()
	c.response.writer.Abort()
	c.finish(err)
}

// Complete ends the exchange from the handler side. Buffered response
// bytes are flushed and headers are committed if nothing was written yet.
// Only the first call has any effect.
func (c *Context) Complete(err error) {
	c.once.Do(func() {
		if c.response.writer.Aborted() {
			c.mu.Lock()
			if c.canceled != nil {
				err = c.canceled
			}
			c.mu.Unlock()

			c.end(err)
			return
		}

		if !c.response.Committed() {
			if err != nil {
				c.response.WriteHeader(http.StatusInternalServerError)
			} else {
				c.response.commit()
			}
		}

		if cerr := c.response.writer.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = c.response.Err()
		}

		c.end(err)
	})
}

// Fork returns a Context that shares c's request and ID but sends its
// response to t. Its header starts as a copy of c's response header and
// its context.Context derives from c's. Canceling the fork closes the
// shared request body; nothing else it does reaches c, so a handler
// running on a fork can be abandoned while c answers the request.
func (c *Context) Fork(t Transport) *Context {
	f := &Context{
		id:        c.ID(),
		transport: t,
		chunkSize: c.chunkSize,
		done:      make(chan struct{}),
	}
	f.ctx, f.cancel = context.WithCancelCause(c.ctx)

	req := *c.request
	req.ctx = f
	f.request = &req

	f.response = &Response{
		header:    c.response.Header().Clone(),
		status:    http.StatusOK,
		transport: t,
	}
	f.response.writer = stream.NewChunkWriter(t, c.chunkSize)

	return f
}

// Detach tells the dispatcher that the handler will call Complete itself,
// after it returns.
func (c *Context) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detached = true
}

// Detached reports whether Detach was called.
func (c *Context) Detached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.detached
}

// SetReadListener switches the request body to push mode.
func (c *Context) SetReadListener(l stream.Listener) error {
	return c.request.Body.SetListener(l)
}

// AddCompletionListener registers fn to run after completion. If the
// Context is already complete fn runs immediately.
func (c *Context) AddCompletionListener(fn func(err error)) {
	c.mu.Lock()
	select {
	case <-c.done:
		err := c.err
		c.mu.Unlock()
		fn(err)
	default:
		c.listeners = append(c.listeners, fn)
		c.mu.Unlock()
	}
}

// Done is closed when the exchange completes.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Err returns the completion error. It is nil until Done is closed.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Wait blocks until the exchange completes or ctx is done.
func (c *Context) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Context) finish(err error) {
	c.once.Do(func() { c.end(err) })
}

// end runs once, inside c.once.
func (c *Context) end(err error) {
	c.mu.Lock()
	c.err = err
	listeners := c.listeners
	c.listeners = nil
	close(c.done)
	c.mu.Unlock()

	if err != nil {
		c.cancel(err)
	} else {
		c.cancel(context.Canceled)
	}

	c.transport.ResponseComplete(err)

	for _, fn := range listeners {
		fn(err)
	}
}
