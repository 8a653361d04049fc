package resthandlers

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// result is what a recordingTransport saw for one exchange.
type result struct {
	status int
	header http.Header
	body   string
	err    error
}

type recordingTransport struct {
	mu     sync.Mutex
	status int
	header http.Header
	body   bytes.Buffer
	done   chan error
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
	r.done <- err
}

// serve runs one GET /test request through handler wrapped in mw.
func serve(t *testing.T, handler rest.HandlerFunc, header http.Header, mw ...rest.MiddlewareFunc) result {
	t.Helper()

	router, err := rest.NewRouter([]rest.Endpoint{
		{Template: "/test", Method: http.MethodGet, Produces: []string{"text/plain"}, Handler: handler},
	}, rest.WithMiddleware(mw...))
	require.NoError(t, err)

	d := rest.NewDispatcher(router, rest.GoExecutor{})
	tr := &recordingTransport{done: make(chan error, 1)}

	if header == nil {
		header = http.Header{}
	}

	c, err := d.Begin(context.Background(), tr, rest.RequestHead{Method: http.MethodGet, Path: "/test", Header: header})
	require.NoError(t, err)
	c.OnBodyComplete()

	var res result
	select {
	case res.err = <-tr.done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	res.status = tr.status
	res.header = tr.header
	res.body = tr.body.String()

	return res
}

func ok(c *async.Context) error {
	_, err := c.Response().Write([]byte("ok"))
	return err
}
