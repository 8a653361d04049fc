package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// DefaultReadBufferSize is the size of each request body buffer.
const DefaultReadBufferSize = 8192

var errClientGone = errors.New("transport: client went away")

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the request logger.
func WithLogger(log logrus.FieldLogger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// WithMetrics enables metrics collection.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithReadBufferSize sets the size of request body buffers.
func WithReadBufferSize(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.readBufferSize = n
		}
	}
}

// Handler adapts a rest.Dispatcher to http.Handler.
type Handler struct {
	dispatcher     *rest.Dispatcher
	log            logrus.FieldLogger
	metrics        *Metrics
	readBufferSize int
}

// NewHandler returns a Handler serving d.
func NewHandler(d *rest.Dispatcher, opts ...HandlerOption) *Handler {
	h := &Handler{
		dispatcher:     d,
		log:            logrus.StandardLogger(),
		readBufferSize: DefaultReadBufferSize,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ServeHTTP runs one exchange. It returns only after the handler has
// completed and the body pump has stopped.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.metrics != nil {
		h.metrics.inflight.Inc()
		defer h.metrics.inflight.Dec()
	}

	rc := http.NewResponseController(w)
	_ = rc.EnableFullDuplex()

	ex := &exchange{
		w:         w,
		rc:        rc,
		ops:       make(chan op),
		gone:      make(chan struct{}),
		completed: make(chan error, 1),
		metrics:   h.metrics,
	}

	c, routeErr := h.dispatcher.Begin(r.Context(), ex, rest.RequestHead{
		Method:     r.Method,
		Path:       r.URL.EscapedPath(),
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
		Host:       r.Host,
		Scheme:     requestScheme(r),
	})

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		h.pump(c, r.Body)
	}()

	err := ex.serve(r.Context(), c)

	select {
	case <-pumped:
	default:
		// Unblock a pump stuck on a body nobody will read.
		_ = rc.SetReadDeadline(time.Now())
		<-pumped
	}

	outcome := Outcome(routeErr, err)
	if h.metrics != nil {
		h.metrics.requests.WithLabelValues(outcome).Inc()
	}

	log := h.log.WithFields(logrus.Fields{
		"request_id":  c.ID(),
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
		"status":      ex.status,
		"outcome":     outcome,
		"duration":    time.Since(start),
	})

	switch {
	case outcome == OutcomeCanceled:
		log.Debug("request canceled")
	case err != nil:
		log.WithError(err).Warn("request failed")
	default:
		log.Info("request served")
	}

	if err != nil && outcome != OutcomeCanceled && ex.committed {
		// Headers are out; the only way to signal a broken body is to
		// drop the connection.
		panic(http.ErrAbortHandler)
	}
}

// requestScheme prefers a scheme set by the proxy headers wrapper.
func requestScheme(r *http.Request) string {
	switch {
	case r.URL.Scheme != "":
		return r.URL.Scheme
	case r.TLS != nil:
		return "https"
	default:
		return "http"
	}
}

// pump hands request body buffers to c until EOF, an error, or the
// exchange ends. Every buffer is freshly allocated since the handoff takes
// ownership.
func (h *Handler) pump(c *async.Context, body io.Reader) {
	for {
		buf := make([]byte, h.readBufferSize)
		n, err := body.Read(buf)

		if n > 0 {
			if h.metrics != nil {
				h.metrics.bodyBytes.Add(float64(n))
			}

			if herr := c.OnBodyChunk(buf[:n]); herr != nil {
				return
			}
		}

		if errors.Is(err, io.EOF) {
			c.OnBodyComplete()
			return
		}

		if err != nil {
			c.OnBodyError(err)
			return
		}

		select {
		case <-c.Done():
			return
		default:
		}
	}
}

type opKind int

const (
	opHeaders opKind = iota
	opFrame
)

type op struct {
	kind   opKind
	status int
	header http.Header
	frame  []byte
	result chan error
}

// exchange is the async.Transport of one request. Handler-side calls are
// turned into ops and applied by serve on the ServeHTTP goroutine.
type exchange struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	ops       chan op
	gone      chan struct{}
	completed chan error
	metrics   *Metrics

	// owned by serve
	status    int
	committed bool
	frames    int
}

func (e *exchange) SendHeaders(status int, header http.Header) error {
	return e.submit(op{kind: opHeaders, status: status, header: header})
}

func (e *exchange) WriteFrame(p []byte) error {
	return e.submit(op{kind: opFrame, frame: p})
}

func (e *exchange) ResponseComplete(err error) {
	e.completed <- err
}

func (e *exchange) submit(o op) error {
	o.result = make(chan error, 1)

	select {
	case e.ops <- o:
	case <-e.gone:
		return errClientGone
	}

	return <-o.result
}

// serve applies ops until the exchange completes or the client goes away.
func (e *exchange) serve(ctx context.Context, c *async.Context) error {
	for {
		select {
		case o := <-e.ops:
			o.result <- e.apply(o)

		case err := <-e.completed:
			close(e.gone)
			return err

		case <-ctx.Done():
			close(e.gone)
			c.Cancel(errClientGone)
			return <-e.completed
		}
	}
}

func (e *exchange) apply(o op) error {
	switch o.kind {
	case opHeaders:
		dst := e.w.Header()
		for k, v := range o.header {
			dst[k] = v
		}

		e.w.WriteHeader(o.status)
		e.status = o.status
		e.committed = true

		return nil

	case opFrame:
		if !e.committed {
			e.status = http.StatusOK
			e.committed = true
		}

		if _, err := e.w.Write(o.frame); err != nil {
			return err
		}

		e.frames++
		if e.metrics != nil {
			e.metrics.frames.Inc()
		}

		if err := e.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}

		return nil
	}

	return nil
}
