package resthandlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// ErrInvalidMaxSize is returned when BodyLimitConfig.MaxBytes is not
// greater than zero.
var ErrInvalidMaxSize = errors.New("body limit: max size must be greater than zero")

// BodyLimitConfig configures the Body Limit middleware behaviour.
type BodyLimitConfig struct {
	// MaxBytes is the largest Content-Length accepted.
	MaxBytes int64
}

// BodyLimitMiddleware returns a middleware that rejects requests whose
// declared Content-Length exceeds MaxBytes with 413 Content Too Large. The
// check runs before the handler reads anything; bodies sent without a
// length are not counted.
func BodyLimitMiddleware(cfg BodyLimitConfig) (rest.MiddlewareFunc, error) {
	if cfg.MaxBytes <= 0 {
		return nil, ErrInvalidMaxSize
	}

	maxBytes := cfg.MaxBytes

	return func(next rest.Handler) rest.Handler {
		return rest.HandlerFunc(func(c *async.Context) error {
			cl := c.Request().Header.Get("Content-Length")
			if cl == "" {
				return next.ServeREST(c)
			}

			n, err := strconv.ParseInt(cl, 10, 64)
			if err != nil || n < 0 {
				return rest.NewStatusError(http.StatusBadRequest, "invalid Content-Length %q", cl)
			}

			if n > maxBytes {
				return &rest.StatusError{Code: http.StatusRequestEntityTooLarge}
			}

			return next.ServeREST(c)
		})
	}, nil
}
