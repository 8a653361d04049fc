package resthandlers

import (
	"bytes"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

var (
	// ErrInvalidTimeout is returned when TimeoutConfig.Duration is not
	// greater than zero.
	ErrInvalidTimeout = errors.New("timeout: duration must be greater than zero")

	// ErrHandlerTimeout is the cause of a timed out request.
	ErrHandlerTimeout = errors.New("timeout: handler did not complete in time")
)

// TimeoutConfig configures the Timeout middleware behaviour.
type TimeoutConfig struct {
	// Duration is the maximum time allowed for the handler to complete.
	// Must be greater than zero.
	Duration time.Duration

	// Message is the response body returned when the handler times out.
	// When empty, the status text is used.
	Message string
}

// TimeoutMiddleware returns a middleware that limits handler execution
// time. The handler runs on a fork of the request Context whose output is
// buffered, like http.TimeoutHandler does. If it finishes within Duration
// the buffered status, headers and body are copied to the real response.
// Otherwise the fork is canceled with ErrHandlerTimeout, so its context is
// done and its writes fail, and the client gets 503 Service Unavailable.
// Nothing the abandoned handler does afterwards reaches the response.
//
// A handler that detaches has until Duration to call Complete on the fork.
//
// It returns ErrInvalidTimeout if Duration is not greater than zero.
func TimeoutMiddleware(cfg TimeoutConfig) (rest.MiddlewareFunc, error) {
	if cfg.Duration <= 0 {
		return nil, ErrInvalidTimeout
	}

	duration := cfg.Duration
	message := cfg.Message

	timedOut := func(fc *async.Context) error {
		fc.Cancel(ErrHandlerTimeout)

		se := &rest.StatusError{Code: http.StatusServiceUnavailable, Err: ErrHandlerTimeout}
		if message != "" {
			se.Err = &timeoutError{message: message}
		}

		return se
	}

	return func(next rest.Handler) rest.Handler {
		return rest.HandlerFunc(func(c *async.Context) error {
			buf := &bufferedResponse{}
			fc := c.Fork(buf)

			handled := make(chan error, 1)
			go func() {
				err := next.ServeREST(fc)
				if err == nil && !fc.Detached() {
					fc.Complete(nil)
				}
				handled <- err
			}()

			timer := time.NewTimer(duration)
			defer timer.Stop()

			var err error
			select {
			case err = <-handled:
			case <-timer.C:
				return timedOut(fc)
			case <-c.Done():
				fc.Cancel(c.Err())
				return c.Err()
			}

			if err != nil {
				committed := fc.Response().Committed()
				fc.Complete(err)
				if !committed {
					// Nothing written: the dispatcher renders err.
					return err
				}
			} else {
				select {
				case <-fc.Done():
				case <-timer.C:
					return timedOut(fc)
				case <-c.Done():
					fc.Cancel(c.Err())
					return c.Err()
				}
			}

			if rerr := buf.replay(c.Response()); rerr != nil {
				return rerr
			}

			return fc.Err()
		})
	}, nil
}

// bufferedResponse is the transport of a forked Context. It keeps the
// committed status and headers and the body frames in memory.
type bufferedResponse struct {
	mu     sync.Mutex
	status int
	header http.Header
	body   bytes.Buffer
}

func (b *bufferedResponse) SendHeaders(status int, header http.Header) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status = status
	b.header = header

	return nil
}

func (b *bufferedResponse) WriteFrame(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.body.Write(p)

	return nil
}

func (b *bufferedResponse) ResponseComplete(error) {}

// replay writes the buffered response to r. The buffered header replaces
// r's header entirely, since the fork started from a copy of it.
func (b *bufferedResponse) replay(r *async.Response) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := r.Header()
	for k := range h {
		delete(h, k)
	}
	for k, v := range b.header {
		h[k] = v
	}

	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	r.WriteHeader(status)

	if b.body.Len() == 0 {
		return r.Err()
	}

	_, err := r.Write(b.body.Bytes())

	return err
}

// timeoutError carries a custom timeout message and still matches
// ErrHandlerTimeout.
type timeoutError struct {
	message string
}

func (e *timeoutError) Error() string {
	return e.message
}

func (e *timeoutError) Is(target error) bool {
	return target == ErrHandlerTimeout
}
