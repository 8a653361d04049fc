package resthandlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// ErrNoAuthSource is returned when BasicAuthConfig has neither ValidateFunc
// nor Credentials configured.
var ErrNoAuthSource = errors.New("basic auth: at least one of ValidateFunc or Credentials must be set")

// BasicAuthConfig configures the Basic Auth middleware behaviour.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc7617
type BasicAuthConfig struct {
	// Realm is the authentication realm sent in the WWW-Authenticate header.
	// Defaults to "Restricted" when empty.
	Realm string

	// ValidateFunc is called to validate credentials dynamically.
	// Takes priority over Credentials when both are set.
	ValidateFunc func(username, password string) bool

	// Credentials is a static map of username -> password pairs, compared
	// in constant time.
	Credentials map[string]string
}

// BasicAuthMiddleware returns a middleware that implements HTTP Basic
// Authentication per RFC 7617. Requests with missing or invalid
// credentials get 401 Unauthorized.
//
// It returns ErrNoAuthSource if both ValidateFunc and Credentials are nil/empty.
func BasicAuthMiddleware(cfg BasicAuthConfig) (rest.MiddlewareFunc, error) {
	if cfg.ValidateFunc == nil && len(cfg.Credentials) == 0 {
		return nil, ErrNoAuthSource
	}

	realm := cfg.Realm
	if realm == "" {
		realm = "Restricted"
	}

	wwwAuthenticate := fmt.Sprintf("Basic realm=%q", realm)

	validate := cfg.ValidateFunc
	if validate == nil {
		credentials := cfg.Credentials
		validate = func(username, password string) bool {
			expected, exists := credentials[username]
			// Compare even for unknown users so timing does not reveal them.
			match := constantTimeEqual(password, expected)

			return exists && match
		}
	}

	return func(next rest.Handler) rest.Handler {
		return rest.HandlerFunc(func(c *async.Context) error {
			username, password, ok := basicAuth(c.Request().Header)
			if !ok || !validate(username, password) {
				c.Response().Header().Set("WWW-Authenticate", wwwAuthenticate)
				return &rest.StatusError{Code: http.StatusUnauthorized}
			}

			return next.ServeREST(c)
		})
	}, nil
}

func basicAuth(h http.Header) (username, password string, ok bool) {
	r := http.Request{Header: h}
	return r.BasicAuth()
}

// constantTimeEqual compares two strings in constant time by first hashing
// them with SHA-256, so different lengths do not leak either.
func constantTimeEqual(a, b string) bool {
	aHash := sha256.Sum256([]byte(a))
	bHash := sha256.Sum256([]byte(b))

	return subtle.ConstantTimeCompare(aHash[:], bHash[:]) == 1
}
