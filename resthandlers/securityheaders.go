package resthandlers

import (
	"errors"
	"fmt"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// ErrInvalidFrameOption is returned when SecurityHeadersConfig.FrameOption
// is not "DENY", "SAMEORIGIN" or empty.
var ErrInvalidFrameOption = errors.New("security headers: frame option must be DENY, SAMEORIGIN, or empty")

// SecurityHeadersConfig configures the Security Headers middleware behaviour.
type SecurityHeadersConfig struct {
	// DisableContentTypeNosniff drops X-Content-Type-Options: nosniff.
	DisableContentTypeNosniff bool

	// FrameOption is the X-Frame-Options value. Defaults to "DENY".
	FrameOption string

	// ReferrerPolicy defaults to "no-referrer", which suits API responses.
	ReferrerPolicy string

	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds. Zero
	// omits the header.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool

	// ContentSecurityPolicy is omitted when empty.
	ContentSecurityPolicy string
}

// SecurityHeadersMiddleware returns a middleware that sets security
// response headers before the handler runs, so they are part of whatever
// the handler commits, error responses included.
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) (rest.MiddlewareFunc, error) {
	switch cfg.FrameOption {
	case "":
		cfg.FrameOption = "DENY"
	case "DENY", "SAMEORIGIN":
	default:
		return nil, ErrInvalidFrameOption
	}

	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = "no-referrer"
	}

	headers := map[string]string{
		"X-Frame-Options": cfg.FrameOption,
		"Referrer-Policy": cfg.ReferrerPolicy,
	}

	if !cfg.DisableContentTypeNosniff {
		headers["X-Content-Type-Options"] = "nosniff"
	}

	if cfg.HSTSMaxAge > 0 {
		hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
		headers["Strict-Transport-Security"] = hsts
	}

	if cfg.ContentSecurityPolicy != "" {
		headers["Content-Security-Policy"] = cfg.ContentSecurityPolicy
	}

	return func(next rest.Handler) rest.Handler {
		return rest.HandlerFunc(func(c *async.Context) error {
			h := c.Response().Header()
			for k, v := range headers {
				h.Set(k, v)
			}

			return next.ServeREST(c)
		})
	}, nil
}
