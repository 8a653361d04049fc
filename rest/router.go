package rest

import (
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/uritemplate"
)

// RequestHead is the part of a request needed to route it.
type RequestHead struct {
	Method string
	Path   string
	Header http.Header
	// RemoteAddr, Host and Scheme describe the client as the transport
	// sees it, after any trusted proxy headers were applied.
	RemoteAddr string
	Host       string
	Scheme     string
}

// Match is a resolved request.
type Match struct {
	Candidate *Candidate
	Params    map[string]string
	// ContentType is the negotiated response type.
	ContentType mediatype.MediaType
}

// WalkFunc is called for each candidate visited by Walk.
type WalkFunc func(c *Candidate) error

// Option configures a Router.
type Option func(*Router)

// WithMiddleware registers middleware at construction, as Use does.
func WithMiddleware(mwf ...MiddlewareFunc) Option {
	return func(r *Router) {
		r.middlewares = append(r.middlewares, mwf...)
	}
}

// Router holds the compiled registration table. It is safe for concurrent
// use once built; Use should be called before serving.
type Router struct {
	candidates  []*Candidate
	named       map[string]*Candidate
	middlewares []MiddlewareFunc

	// handlerCache caches the middleware-wrapped handler per candidate
	// to avoid re-wrapping on every request.
	handlerCache sync.Map // map[*Candidate]Handler
}

type candidateMatch struct {
	candidate *Candidate
	match     uritemplate.PathMatch
}

// NewRouter compiles every endpoint. The first invalid endpoint aborts
// construction.
func NewRouter(endpoints []Endpoint, opts ...Option) (*Router, error) {
	r := &Router{
		candidates: make([]*Candidate, 0, len(endpoints)),
		named:      make(map[string]*Candidate),
	}

	for i, e := range endpoints {
		c, err := newCandidate(e, i)
		if err != nil {
			return nil, err
		}

		if e.Name != "" {
			if _, ok := r.named[e.Name]; ok {
				return nil, fmt.Errorf("%w: name %q is already registered", ErrInvalidEndpoint, e.Name)
			}
			r.named[e.Name] = c
		}

		r.candidates = append(r.candidates, c)
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// MustNewRouter is like NewRouter but panics on error.
func MustNewRouter(endpoints []Endpoint, opts ...Option) *Router {
	r, err := NewRouter(endpoints, opts...)
	if err != nil {
		panic(err)
	}

	return r
}

// FindCandidates returns the candidates whose pattern matches path, most
// specific first. It returns ErrNotFound when nothing matches.
func (r *Router) FindCandidates(path string) ([]*Candidate, error) {
	matches, err := r.find(path)
	if err != nil {
		return nil, err
	}

	out := make([]*Candidate, len(matches))
	for i, m := range matches {
		out[i] = m.candidate
	}

	return out, nil
}

// Route returns the best candidate for method and path together with the
// extracted path parameters.
func (r *Router) Route(method, path string) (*Candidate, map[string]string, error) {
	routes, err := r.route(method, path)
	if err != nil {
		return nil, nil, err
	}

	return routes[0].candidate, routes[0].match.Params, nil
}

// Resolve routes the request head, checks the request Content-Type and
// negotiates the response type from the Accept header.
func (r *Router) Resolve(head RequestHead) (*Match, error) {
	routes, err := r.route(head.Method, head.Path)
	if err != nil {
		return nil, err
	}

	requested, err := mediatype.ParseList(strings.Join(head.Header.Values("Accept"), ","))
	if err != nil {
		return nil, fmt.Errorf("%w: accept: %w", ErrBadRequest, err)
	}

	var (
		contentType mediatype.MediaType
		hasBody     bool
	)
	if v := head.Header.Get("Content-Type"); v != "" {
		if contentType, err = mediatype.Parse(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedMediaType, err)
		}
		hasBody = true
	}

	var consuming []candidateMatch
	for _, rm := range routes {
		if rm.candidate.accepts(contentType, hasBody) {
			consuming = append(consuming, rm)
		}
	}

	if len(consuming) == 0 {
		return nil, ErrUnsupportedMediaType
	}

	for _, rm := range consuming {
		mt, err := mediatype.Select(requested, rm.candidate.produces)
		if err != nil {
			continue
		}

		return &Match{Candidate: rm.candidate, Params: rm.match.Params, ContentType: mt}, nil
	}

	return nil, mediatype.ErrNotAcceptable
}

// Get returns the candidate registered under name, or nil.
func (r *Router) Get(name string) *Candidate {
	return r.named[name]
}

// Use appends middleware. Middleware is applied to matched handlers only.
func (r *Router) Use(mwf ...MiddlewareFunc) {
	r.middlewares = append(r.middlewares, mwf...)
	r.handlerCache.Clear()
}

// Handler returns the candidate's handler wrapped in the router's
// middleware.
func (r *Router) Handler(c *Candidate) Handler {
	if cached, ok := r.handlerCache.Load(c); ok {
		return cached.(Handler)
	}

	h := r.applyMiddleware(c.endpoint.Handler)
	r.handlerCache.Store(c, h)

	return h
}

// Walk calls fn for each candidate in registration order and stops at the
// first error.
func (r *Router) Walk(fn WalkFunc) error {
	for _, c := range r.candidates {
		if err := fn(c); err != nil {
			return err
		}
	}

	return nil
}

// applyMiddleware wraps the handler with all registered middleware.
func (r *Router) applyMiddleware(handler Handler) Handler {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i].Middleware(handler)
	}

	return handler
}

func (r *Router) find(path string) ([]candidateMatch, error) {
	var matches []candidateMatch
	for _, c := range r.candidates {
		if m := c.pattern.Match(path); m.Matched {
			matches = append(matches, candidateMatch{candidate: c, match: m})
		}
	}

	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return outranks(matches[i].candidate, matches[j].candidate)
	})

	return matches, nil
}

// route returns the ordered candidates that serve path with method.
func (r *Router) route(method, path string) ([]candidateMatch, error) {
	serving, err := r.serving(path)
	if err != nil {
		return nil, err
	}

	method = strings.ToUpper(method)

	var exact, get []candidateMatch
	for _, m := range serving {
		switch m.candidate.method {
		case method:
			exact = append(exact, m)
		case http.MethodGet:
			get = append(get, m)
		}
	}

	if len(exact) > 0 {
		return exact, nil
	}

	if method == http.MethodHead && len(get) > 0 {
		return get, nil
	}

	return nil, &MethodNotAllowedError{Method: method, Allowed: allowedMethods(serving)}
}

// AllowedMethods returns the sorted methods some endpoint serves for path,
// with HEAD implied by GET. It returns ErrNotFound when nothing serves path.
func (r *Router) AllowedMethods(path string) ([]string, error) {
	serving, err := r.serving(path)
	if err != nil {
		return nil, err
	}

	return allowedMethods(serving), nil
}

// serving returns the matches that fully match path or are prefix
// endpoints.
func (r *Router) serving(path string) ([]candidateMatch, error) {
	matches, err := r.find(path)
	if err != nil {
		return nil, err
	}

	var serving []candidateMatch
	for _, m := range matches {
		if m.match.Full || m.candidate.endpoint.Prefix {
			serving = append(serving, m)
		}
	}

	if len(serving) == 0 {
		return nil, ErrNotFound
	}

	return serving, nil
}

func allowedMethods(serving []candidateMatch) []string {
	var allowed []string
	for _, m := range serving {
		if !slices.Contains(allowed, m.candidate.method) {
			allowed = append(allowed, m.candidate.method)
		}
	}

	if slices.Contains(allowed, http.MethodGet) && !slices.Contains(allowed, http.MethodHead) {
		allowed = append(allowed, http.MethodHead)
	}
	sort.Strings(allowed)

	return allowed
}
