package resthandlers

import (
	"github.com/google/uuid"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// RequestIDConfig configures the Request ID middleware behaviour.
type RequestIDConfig struct {
	// HeaderName overrides the header used to propagate the request ID.
	// Defaults to "X-Request-ID" when empty.
	HeaderName string

	// GenerateFunc returns a new unique ID. Defaults to the ID the
	// Context was created with, which is a UUID v4.
	GenerateFunc func(c *async.Context) string

	// TrustIncoming, when true, reuses an existing request ID from the
	// incoming request header instead of generating a new one.
	TrustIncoming bool
}

// RequestIDMiddleware returns a middleware that generates or propagates a
// request ID. The ID becomes the Context ID and is set on both the request
// and the response headers.
func RequestIDMiddleware(cfg RequestIDConfig) rest.MiddlewareFunc {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-Request-ID"
	}

	generate := cfg.GenerateFunc
	if generate == nil {
		generate = (*async.Context).ID
	}

	trustIncoming := cfg.TrustIncoming

	return func(next rest.Handler) rest.Handler {
		return rest.HandlerFunc(func(c *async.Context) error {
			id := ""
			if trustIncoming {
				id = c.Request().Header.Get(headerName)
			}

			if id == "" {
				id = generate(c)
			}

			if id != "" {
				c.SetID(id)
				c.Request().Header.Set(headerName, id)
				c.Response().Header().Set(headerName, id)
			}

			return next.ServeREST(c)
		})
	}
}

// GenerateUUIDv4 returns a new UUID v4 string.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc9562#section-5.4
func GenerateUUIDv4(_ *async.Context) string {
	return uuid.New().String()
}

// GenerateUUIDv7 returns a new UUID v7 string. UUIDs are time-ordered:
// IDs generated later sort lexicographically after earlier ones.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc9562#section-5.7
func GenerateUUIDv7(_ *async.Context) string {
	return uuid.Must(uuid.NewV7()).String()
}
