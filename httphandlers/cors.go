package httphandlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/vitalvas/restmux/rest"
)

var (
	// ErrWildcardCredentials is returned when AllowedOrigins contains "*"
	// and AllowCredentials is set. Use AllowOriginFunc instead.
	ErrWildcardCredentials = errors.New("cors: wildcard origin cannot be used with credentials")

	// ErrInvalidOrigin is returned for an origin pattern with more than
	// one wildcard.
	ErrInvalidOrigin = errors.New("cors: invalid origin pattern")
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowedOrigins holds exact origins, "*", or patterns with one
	// wildcard such as "https://*.example.com". Matching ignores case.
	AllowedOrigins []string

	// AllowOriginFunc is consulted when no AllowedOrigins entry matches.
	AllowOriginFunc func(origin string) bool

	// AllowedMethods overrides the methods discovered from the router.
	AllowedMethods []string

	// AllowedHeaders is sent on preflight. Empty or "*" reflects
	// Access-Control-Request-Headers.
	AllowedHeaders []string

	ExposeHeaders    []string
	AllowCredentials bool

	// MaxAge in seconds for preflight caching. Zero omits the header,
	// negative sends "0".
	MaxAge int
}

type originPattern struct {
	prefix string
	suffix string
}

func (p originPattern) match(origin string) bool {
	return len(origin) >= len(p.prefix)+len(p.suffix) &&
		strings.HasPrefix(origin, p.prefix) &&
		strings.HasSuffix(origin, p.suffix)
}

// CORSMiddleware returns a wrapper implementing the CORS protocol in front
// of router. Preflight requests for any path the router serves are
// answered with 204 and never reach a handler; the allowed methods are the
// ones router has for that path. Preflights for unknown paths fall through
// and get the router's 404.
//
// Every response carries Vary: Origin unless "*" is sent as the origin.
func CORSMiddleware(router *rest.Router, cfg CORSConfig) (func(http.Handler) http.Handler, error) {
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")
	if wildcard && cfg.AllowCredentials {
		return nil, ErrWildcardCredentials
	}

	exact := make(map[string]bool)
	var patterns []originPattern

	for _, o := range cfg.AllowedOrigins {
		lower := strings.ToLower(o)

		prefix, suffix, ok := strings.Cut(lower, "*")
		switch {
		case lower == "*":
		case !ok:
			exact[lower] = true
		case strings.Contains(suffix, "*"):
			return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, o)
		default:
			patterns = append(patterns, originPattern{prefix: prefix, suffix: suffix})
		}
	}

	allowed := func(origin string) bool {
		lower := strings.ToLower(origin)
		if wildcard || exact[lower] {
			return true
		}

		for _, p := range patterns {
			if p.match(lower) {
				return true
			}
		}

		return cfg.AllowOriginFunc != nil && cfg.AllowOriginFunc(origin)
	}

	reflectHeaders := len(cfg.AllowedHeaders) == 0 || slices.Contains(cfg.AllowedHeaders, "*")

	methodsFor := func(path string) ([]string, bool) {
		methods, err := router.AllowedMethods(path)
		if err != nil {
			return nil, false
		}

		if len(cfg.AllowedMethods) > 0 {
			return cfg.AllowedMethods, true
		}

		if !slices.Contains(methods, http.MethodOptions) {
			methods = append(methods, http.MethodOptions)
		}

		return methods, true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")

			if origin == "" || !allowed(origin) {
				if !wildcard {
					h.Add("Vary", "Origin")
				}

				next.ServeHTTP(w, r)
				return
			}

			methods, known := methodsFor(r.URL.EscapedPath())
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if preflight && !known {
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}

			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if len(methods) > 0 {
				h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			}

			if !preflight {
				if len(cfg.ExposeHeaders) > 0 {
					h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
				}

				next.ServeHTTP(w, r)
				return
			}

			if reflectHeaders {
				if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
					h.Set("Access-Control-Allow-Headers", requested)
				}
			} else {
				h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
			}

			switch {
			case cfg.MaxAge > 0:
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			case cfg.MaxAge < 0:
				h.Set("Access-Control-Max-Age", "0")
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			w.WriteHeader(http.StatusNoContent)
		})
	}, nil
}
