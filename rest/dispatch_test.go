package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/restmux/async"
)

type recordingTransport struct {
	mu        sync.Mutex
	status    int
	header    http.Header
	body      bytes.Buffer
	completed chan error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{completed: make(chan error, 1)}
}

func (r *recordingTransport) SendHeaders(status int, header http.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = status
	r.header = header

	return nil
}

func (r *recordingTransport) WriteFrame(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.body.Write(p)

	return nil
}

func (r *recordingTransport) ResponseComplete(err error) {
	r.completed <- err
}

var inline = ExecutorFunc(func(task func()) { task() })

func newTestDispatcher(t *testing.T, endpoints ...Endpoint) (*Dispatcher, *test.Hook) {
	t.Helper()

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	return NewDispatcher(MustNewRouter(endpoints), inline, WithLogger(log), WithChunkSize(4)), hook
}

func TestDispatcherBegin(t *testing.T) {
	echo := Endpoint{
		Template: "/echo/{name}",
		Method:   http.MethodPost,
		Produces: []string{"text/plain"},
		Handler: HandlerFunc(func(c *async.Context) error {
			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return err
			}

			_, err = c.Response().Write(append([]byte(c.Request().Param("name")+":"), body...))
			return err
		}),
	}

	d, _ := newTestDispatcher(t, echo)
	d.executor = GoExecutor{}
	tr := newRecordingTransport()

	c, err := d.Begin(context.Background(), tr, RequestHead{Method: http.MethodPost, Path: "/echo/bob"})
	require.NoError(t, err)

	require.NoError(t, c.OnBodyChunk([]byte("hello")))
	c.OnBodyComplete()

	require.NoError(t, <-tr.completed)
	assert.Equal(t, http.StatusOK, tr.status)
	assert.Equal(t, "text/plain", tr.header.Get("Content-Type"))
	assert.Equal(t, "bob:hello", tr.body.String())
	assert.Same(t, d.Router(), d.router)
}

func TestDispatcherRoutingErrors(t *testing.T) {
	d, _ := newTestDispatcher(t,
		Endpoint{Template: "/fruits", Method: http.MethodGet, Produces: []string{"application/json"}, Handler: noop},
		Endpoint{Template: "/fruits", Method: http.MethodPost, Consumes: []string{"application/json"}, Handler: noop},
	)

	tests := []struct {
		name   string
		head   RequestHead
		status int
		allow  string
	}{
		{name: "not found", head: RequestHead{Method: http.MethodGet, Path: "/veg"}, status: http.StatusNotFound},
		{name: "method not allowed", head: RequestHead{Method: http.MethodPut, Path: "/fruits"}, status: http.StatusMethodNotAllowed, allow: "GET, HEAD, POST"},
		{
			name:   "not acceptable",
			head:   RequestHead{Method: http.MethodGet, Path: "/fruits", Header: http.Header{"Accept": {"image/png"}}},
			status: http.StatusNotAcceptable,
		},
		{
			name:   "unsupported media type",
			head:   RequestHead{Method: http.MethodPost, Path: "/fruits", Header: http.Header{"Content-Type": {"text/xml"}}},
			status: http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newRecordingTransport()

			c, err := d.Begin(context.Background(), tr, tt.head)
			require.Error(t, err)
			require.NotNil(t, c)
			assert.Equal(t, tt.status, StatusCode(err))

			require.NoError(t, <-tr.completed)
			assert.Equal(t, tt.status, tr.status)
			assert.Equal(t, "text/plain; charset=utf-8", tr.header.Get("Content-Type"))
			assert.Equal(t, tt.allow, tr.header.Get("Allow"))
			assert.Equal(t, http.StatusText(tt.status)+"\n", tr.body.String())
		})
	}
}

func TestDispatcherHandlerErrors(t *testing.T) {
	t.Run("error before commit becomes status response", func(t *testing.T) {
		d, hook := newTestDispatcher(t, Endpoint{
			Template: "/x", Method: http.MethodGet,
			Handler: HandlerFunc(func(*async.Context) error { return NewStatusError(http.StatusConflict, "taken") }),
		})
		tr := newRecordingTransport()

		_, err := d.Begin(context.Background(), tr, RequestHead{Method: http.MethodGet, Path: "/x"})
		require.NoError(t, err)

		require.NoError(t, <-tr.completed)
		assert.Equal(t, http.StatusConflict, tr.status)
		assert.Equal(t, "taken\n", tr.body.String())
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	})

	t.Run("internal error is logged", func(t *testing.T) {
		boom := errors.New("boom")
		d, hook := newTestDispatcher(t, Endpoint{
			Template: "/x", Method: http.MethodGet,
			Handler: HandlerFunc(func(*async.Context) error { return boom }),
		})
		tr := newRecordingTransport()

		_, err := d.Begin(context.Background(), tr, RequestHead{Method: http.MethodGet, Path: "/x"})
		require.NoError(t, err)

		require.NoError(t, <-tr.completed)
		assert.Equal(t, http.StatusInternalServerError, tr.status)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
		assert.Equal(t, boom, hook.LastEntry().Data[logrus.ErrorKey])
		assert.Equal(t, "GET /x", hook.LastEntry().Data["endpoint"])
	})

	t.Run("error after commit completes with error", func(t *testing.T) {
		boom := errors.New("boom")
		d, hook := newTestDispatcher(t, Endpoint{
			Template: "/x", Method: http.MethodGet,
			Handler: HandlerFunc(func(c *async.Context) error {
				c.Response().WriteHeader(http.StatusAccepted)
				return boom
			}),
		})
		tr := newRecordingTransport()

		_, err := d.Begin(context.Background(), tr, RequestHead{Method: http.MethodGet, Path: "/x"})
		require.NoError(t, err)

		assert.ErrorIs(t, <-tr.completed, boom)
		assert.Equal(t, http.StatusAccepted, tr.status)
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})
}

func TestDispatcherDetach(t *testing.T) {
	var held *async.Context

	d, _ := newTestDispatcher(t, Endpoint{
		Template: "/later", Method: http.MethodGet,
		Handler: HandlerFunc(func(c *async.Context) error {
			c.Detach()
			held = c
			return nil
		}),
	})
	tr := newRecordingTransport()

	_, err := d.Begin(context.Background(), tr, RequestHead{Method: http.MethodGet, Path: "/later"})
	require.NoError(t, err)

	select {
	case <-tr.completed:
		t.Fatal("detached request completed early")
	default:
	}

	_, err = held.Response().Write([]byte("done"))
	require.NoError(t, err)
	held.Complete(nil)

	require.NoError(t, <-tr.completed)
	assert.Equal(t, "done", tr.body.String())
}

func TestGoExecutor(t *testing.T) {
	done := make(chan struct{})
	GoExecutor{}.Submit(func() { close(done) })
	<-done

	d := NewDispatcher(MustNewRouter(nil), nil)
	assert.IsType(t, GoExecutor{}, d.executor)
}

func TestDispatcherHandlerMiddleware(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next Handler) Handler {
			return HandlerFunc(func(c *async.Context) error {
				order = append(order, name)
				c.Response().Header().Add("X-Chain", name)
				return next.ServeREST(c)
			})
		}
	}

	router := MustNewRouter([]Endpoint{{
		Template: "/chain",
		Method:   http.MethodGet,
		Produces: []string{"text/plain"},
		Handler: HandlerFunc(func(c *async.Context) error {
			order = append(order, "handler")
			return nil
		}),
	}}, WithMiddleware(mw("router")))

	begin := func(d *Dispatcher) *recordingTransport {
		tr := newRecordingTransport()
		_, err := d.Begin(context.Background(), tr, RequestHead{Method: http.MethodGet, Path: "/chain"})
		require.NoError(t, err)
		require.NoError(t, <-tr.completed)

		return tr
	}

	withChain := NewDispatcher(router, inline, WithHandlerMiddleware(mw("first"), mw("second")))
	plain := NewDispatcher(router, inline)

	tr := begin(withChain)
	assert.Equal(t, []string{"first", "second", "router", "handler"}, order)
	assert.Equal(t, []string{"first", "second", "router"}, tr.header.Values("X-Chain"))

	order = nil
	tr = begin(plain)
	assert.Equal(t, []string{"router", "handler"}, order)
	assert.Equal(t, []string{"router"}, tr.header.Values("X-Chain"))

	assert.Len(t, router.middlewares, 1)
}
