package rest

import (
	"fmt"
	"strings"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/uritemplate"
)

// Handler serves one request. It reads the body from c.Request().Body and
// writes to c.Response(). Returning ends the exchange unless the handler
// called c.Detach.
type Handler interface {
	ServeREST(c *async.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *async.Context) error

// ServeREST calls f(c).
func (f HandlerFunc) ServeREST(c *async.Context) error {
	return f(c)
}

// MiddlewareFunc wraps a Handler.
type MiddlewareFunc func(Handler) Handler

// Middleware applies mw to handler.
func (mw MiddlewareFunc) Middleware(handler Handler) Handler {
	return mw(handler)
}

// Endpoint is one entry of the registration table.
type Endpoint struct {
	// Template is a URI template such as "/fruits/{name}".
	Template string
	// Method is the HTTP method, case-insensitive.
	Method string
	// Produces lists the response media types. Empty means "*/*".
	Produces []string
	// Consumes lists the accepted request media types. Empty accepts any.
	Consumes []string
	Handler  Handler
	// Prefix endpoints also serve paths that extend the template.
	Prefix bool
	// Name is optional and only used for lookups and logs.
	Name string
}

// Candidate is a compiled endpoint plus the data used to rank it.
type Candidate struct {
	endpoint Endpoint
	method   string
	pattern  *uritemplate.Pattern
	produces []mediatype.MediaType
	consumes []mediatype.MediaType
	index    int
}

func newCandidate(e Endpoint, index int) (*Candidate, error) {
	if e.Handler == nil {
		return nil, fmt.Errorf("%w: %s %q has no handler", ErrInvalidEndpoint, e.Method, e.Template)
	}

	method := strings.ToUpper(strings.TrimSpace(e.Method))
	if method == "" {
		return nil, fmt.Errorf("%w: %q has no method", ErrInvalidEndpoint, e.Template)
	}

	pattern, err := uritemplate.Compile(e.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", ErrInvalidEndpoint, method, e.Template, err)
	}

	produces := []mediatype.MediaType{mediatype.Any}
	if len(e.Produces) > 0 {
		if produces, err = mediatype.ParseAll(e.Produces); err != nil {
			return nil, fmt.Errorf("%w: %s %q produces: %w", ErrInvalidEndpoint, method, e.Template, err)
		}
	}

	consumes, err := mediatype.ParseAll(e.Consumes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q consumes: %w", ErrInvalidEndpoint, method, e.Template, err)
	}

	return &Candidate{
		endpoint: e,
		method:   method,
		pattern:  pattern,
		produces: produces,
		consumes: consumes,
		index:    index,
	}, nil
}

// Endpoint returns the registered endpoint.
func (c *Candidate) Endpoint() Endpoint {
	return c.endpoint
}

// Method returns the normalized HTTP method.
func (c *Candidate) Method() string {
	return c.method
}

// Pattern returns the compiled template.
func (c *Candidate) Pattern() *uritemplate.Pattern {
	return c.pattern
}

// PatternLength returns the compiled pattern length.
func (c *Candidate) PatternLength() int {
	return c.pattern.Len()
}

// GroupCount returns the number of named groups.
func (c *Candidate) GroupCount() int {
	return c.pattern.GroupCount()
}

// NonDefaultGroupCount returns the number of groups with an explicit
// fragment.
func (c *Candidate) NonDefaultGroupCount() int {
	return c.pattern.NonDefaultGroupCount()
}

// Produces returns the parsed response media types.
func (c *Candidate) Produces() []mediatype.MediaType {
	return c.produces
}

// Consumes returns the parsed request media types.
func (c *Candidate) Consumes() []mediatype.MediaType {
	return c.consumes
}

// String returns "METHOD template".
func (c *Candidate) String() string {
	return c.method + " " + c.endpoint.Template
}

// accepts reports whether the endpoint consumes a body of the given
// Content-Type. A missing Content-Type is always accepted.
func (c *Candidate) accepts(contentType mediatype.MediaType, present bool) bool {
	if len(c.consumes) == 0 || !present {
		return true
	}

	for _, mt := range c.consumes {
		if mediatype.IsCompatible(mt, contentType) {
			return true
		}
	}

	return false
}

// outranks reports whether a must be tried before b.
func outranks(a, b *Candidate) bool {
	if la, lb := a.PatternLength(), b.PatternLength(); la != lb {
		return la > lb
	}

	if ga, gb := a.GroupCount(), b.GroupCount(); ga != gb {
		return ga > gb
	}

	return a.NonDefaultGroupCount() > b.NonDefaultGroupCount()
}
