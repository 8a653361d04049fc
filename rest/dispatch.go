package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vitalvas/restmux/async"
)

// Executor runs handler tasks off the transport's goroutine.
type Executor interface {
	Submit(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

// Submit calls f(task).
func (f ExecutorFunc) Submit(task func()) {
	f(task)
}

// GoExecutor runs every task on a new goroutine.
type GoExecutor struct{}

// Submit starts task on a new goroutine.
func (GoExecutor) Submit(task func()) {
	go task()
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithChunkSize sets the response frame size.
func WithChunkSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.chunkSize = n }
}

// WithLogger sets the logger for handler errors.
func WithLogger(log logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// WithHandlerMiddleware wraps every routed handler in mw, outside the
// router's own middleware. The first middleware is the outermost. Unlike
// Router.Use it leaves the router untouched, so several dispatchers can
// share one router with different chains.
func WithHandlerMiddleware(mw ...MiddlewareFunc) DispatcherOption {
	return func(d *Dispatcher) { d.middlewares = append(d.middlewares, mw...) }
}

// Dispatcher connects a Router to a transport.
type Dispatcher struct {
	router      *Router
	executor    Executor
	chunkSize   int
	log         logrus.FieldLogger
	middlewares []MiddlewareFunc
}

// NewDispatcher returns a Dispatcher running handlers on executor. A nil
// executor means GoExecutor.
func NewDispatcher(router *Router, executor Executor, opts ...DispatcherOption) *Dispatcher {
	if executor == nil {
		executor = GoExecutor{}
	}

	d := &Dispatcher{
		router:   router,
		executor: executor,
		log:      logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Router returns the dispatcher's router.
func (d *Dispatcher) Router() *Router {
	return d.router
}

// Begin is called once the request head has arrived. It always returns a
// Context the transport must feed body events into. The returned error is
// the routing failure, if any; the error response for it is already on its
// way through the Context.
func (d *Dispatcher) Begin(ctx context.Context, t async.Transport, head RequestHead) (*async.Context, error) {
	m, err := d.router.Resolve(head)

	ah := async.Head{
		Method:     head.Method,
		Path:       head.Path,
		Header:     head.Header,
		RemoteAddr: head.RemoteAddr,
		Host:       head.Host,
		Scheme:     head.Scheme,
	}
	if m != nil {
		ah.Params = m.Params
		ah.ContentType = m.ContentType
	}

	c := async.New(t, ah, async.WithParent(ctx), async.WithChunkSize(d.chunkSize))

	if err != nil {
		d.executor.Submit(func() {
			writeError(c, err)
			c.Complete(nil)
		})

		return c, err
	}

	c.Response().Header().Set("Content-Type", m.ContentType.String())
	h := d.handler(m.Candidate)

	d.executor.Submit(func() {
		d.run(c, h, m.Candidate)
	})

	return c, nil
}

func (d *Dispatcher) handler(candidate *Candidate) Handler {
	h := d.router.Handler(candidate)
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		h = d.middlewares[i].Middleware(h)
	}

	return h
}

func (d *Dispatcher) run(c *async.Context, h Handler, candidate *Candidate) {
	err := h.ServeREST(c)

	if err == nil {
		if !c.Detached() {
			c.Complete(nil)
		}
		return
	}

	log := d.log.WithFields(logrus.Fields{
		"request_id": c.ID(),
		"endpoint":   candidate.String(),
	}).WithError(err)

	if c.Response().Committed() {
		log.Warn("handler failed after response was committed")
		c.Complete(err)
		return
	}

	if StatusCode(err) >= http.StatusInternalServerError {
		log.Error("handler failed")
	} else {
		log.Debug("handler returned error status")
	}

	writeError(c, err)
	c.Complete(nil)
}

// writeError sends a plain-text status response for err. A StatusError
// carrying a message uses it as the body; anything else gets the status
// text so internal details do not leak.
func writeError(c *async.Context, err error) {
	status := StatusCode(err)

	text := http.StatusText(status)
	var se *StatusError
	if errors.As(err, &se) && se.Err != nil {
		text = se.Err.Error()
	}

	h := c.Response().Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")

	var mna *MethodNotAllowedError
	if errors.As(err, &mna) {
		h.Set("Allow", strings.Join(mna.Allowed, ", "))
	}

	c.Response().WriteHeader(status)
	fmt.Fprintln(c.Response(), text) //nolint:errcheck
}
