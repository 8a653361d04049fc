package rest

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/uritemplate"
)

var noop = HandlerFunc(func(*async.Context) error { return nil })

func templates(cs []*Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Endpoint().Template
	}

	return out
}

func get(tpl string, produces ...string) Endpoint {
	return Endpoint{Template: tpl, Method: http.MethodGet, Produces: produces, Handler: noop}
}

func TestNewRouter(t *testing.T) {
	t.Run("invalid template aborts construction", func(t *testing.T) {
		r, err := NewRouter([]Endpoint{
			get("/ok"),
			get("/fruit/{version : v[12](?<blah}"),
		})
		assert.Nil(t, r)
		assert.ErrorIs(t, err, uritemplate.ErrInvalidTemplate)
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("invalid produces", func(t *testing.T) {
		_, err := NewRouter([]Endpoint{get("/ok", "nonsense")})
		assert.ErrorIs(t, err, mediatype.ErrInvalidMediaType)
	})

	t.Run("invalid consumes", func(t *testing.T) {
		_, err := NewRouter([]Endpoint{{Template: "/", Method: "POST", Consumes: []string{"x"}, Handler: noop}})
		assert.ErrorIs(t, err, mediatype.ErrInvalidMediaType)
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := NewRouter([]Endpoint{{Template: "/", Handler: noop}})
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("missing handler", func(t *testing.T) {
		_, err := NewRouter([]Endpoint{{Template: "/", Method: "GET"}})
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("duplicate name", func(t *testing.T) {
		a := get("/a")
		a.Name = "x"
		b := get("/b")
		b.Name = "x"
		_, err := NewRouter([]Endpoint{a, b})
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("method is normalized and produces defaults to any", func(t *testing.T) {
		r := MustNewRouter([]Endpoint{{Template: "/a", Method: " get ", Handler: noop, Name: "a"}})
		c := r.Get("a")
		require.NotNil(t, c)
		assert.Equal(t, http.MethodGet, c.Method())
		assert.Equal(t, []mediatype.MediaType{mediatype.Any}, c.Produces())
		assert.Equal(t, "GET /a", c.String())
		assert.Nil(t, r.Get("missing"))
	})

	t.Run("MustNewRouter panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNewRouter([]Endpoint{get("/{a")}) })
	})
}

func TestFindCandidates(t *testing.T) {
	t.Run("longer pattern first", func(t *testing.T) {
		r := MustNewRouter([]Endpoint{
			get("/api/resources/one"),
			get("/api/resources/one/2"),
			get("/api/other"),
		})

		cs, err := r.FindCandidates("/api/resources/one/2")
		require.NoError(t, err)
		assert.Equal(t, []string{"/api/resources/one/2", "/api/resources/one"}, templates(cs))
	})

	t.Run("parameterized outranks equal length literal", func(t *testing.T) {
		r := MustNewRouter([]Endpoint{
			get("/api/widgets/something-else"),
			get("/api/widgets/{another}"),
		})

		cs, err := r.FindCandidates("/api/widgets/something-else")
		require.NoError(t, err)
		require.Len(t, cs, 2)
		assert.Equal(t, cs[0].PatternLength(), cs[1].PatternLength())
		assert.Equal(t, []string{"/api/widgets/{another}", "/api/widgets/something-else"}, templates(cs))
	})

	t.Run("explicit fragment outranks default group", func(t *testing.T) {
		r := MustNewRouter([]Endpoint{
			get("/api/{id}"),
			get("/api/{id:[A-Z]+}"),
		})

		cs, err := r.FindCandidates("/api/ABC")
		require.NoError(t, err)
		assert.Equal(t, []string{"/api/{id:[A-Z]+}", "/api/{id}"}, templates(cs))
		assert.Equal(t, 1, cs[0].NonDefaultGroupCount())
		assert.Equal(t, 1, cs[0].GroupCount())
	})

	t.Run("ties keep registration order", func(t *testing.T) {
		r := MustNewRouter([]Endpoint{
			get("/t/{a}"),
			get("/t/{b}"),
		})

		cs, err := r.FindCandidates("/t/x")
		require.NoError(t, err)
		assert.Equal(t, []string{"/t/{a}", "/t/{b}"}, templates(cs))
	})

	t.Run("no match", func(t *testing.T) {
		r := MustNewRouter([]Endpoint{get("/a")})
		_, err := r.FindCandidates("/b")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRoute(t *testing.T) {
	r := MustNewRouter([]Endpoint{
		get("/fruits"),
		{Template: "/fruits", Method: http.MethodPost, Handler: noop},
		get("/fruits/{name}"),
		{Template: "/fruits/{name}", Method: http.MethodDelete, Handler: noop},
		{Template: "/static", Method: http.MethodGet, Handler: noop, Prefix: true},
	})

	t.Run("method picks endpoint", func(t *testing.T) {
		c, params, err := r.Route(http.MethodDelete, "/fruits/apple")
		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, c.Method())
		assert.Equal(t, map[string]string{"name": "apple"}, params)
	})

	t.Run("lowercase method", func(t *testing.T) {
		c, _, err := r.Route("post", "/fruits")
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, c.Method())
	})

	t.Run("method not allowed lists methods", func(t *testing.T) {
		_, _, err := r.Route(http.MethodPut, "/fruits/apple")
		assert.ErrorIs(t, err, ErrMethodNotAllowed)

		var mna *MethodNotAllowedError
		require.True(t, errors.As(err, &mna))
		assert.Equal(t, []string{"DELETE", "GET", "HEAD"}, mna.Allowed)
		assert.Equal(t, http.MethodPut, mna.Method)
		assert.Contains(t, mna.Error(), "PUT")
	})

	t.Run("head falls back to get", func(t *testing.T) {
		c, _, err := r.Route(http.MethodHead, "/fruits")
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, c.Method())
	})

	t.Run("extended path is not found", func(t *testing.T) {
		_, _, err := r.Route(http.MethodGet, "/fruits/apple/seeds")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("prefix endpoint serves extended path", func(t *testing.T) {
		c, _, err := r.Route(http.MethodGet, "/static/css/site.css")
		require.NoError(t, err)
		assert.Equal(t, "/static", c.Endpoint().Template)
	})

	t.Run("trailing slash is a full match", func(t *testing.T) {
		_, _, err := r.Route(http.MethodGet, "/fruits/")
		assert.NoError(t, err)
	})

	t.Run("unknown path", func(t *testing.T) {
		_, _, err := r.Route(http.MethodGet, "/veg")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAllowedMethods(t *testing.T) {
	r := MustNewRouter([]Endpoint{
		get("/fruits"),
		{Template: "/fruits", Method: http.MethodPost, Handler: noop},
		{Template: "/fruits/{name}", Method: http.MethodDelete, Handler: noop},
	})

	tests := []struct {
		path    string
		want    []string
		wantErr error
	}{
		{"/fruits", []string{"GET", "HEAD", "POST"}, nil},
		{"/fruits/apple", []string{"DELETE"}, nil},
		{"/veg", nil, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := r.AllowedMethods(tt.path)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	r := MustNewRouter([]Endpoint{
		get("/docs/{id}", "application/json"),
		get("/docs/{no}", "text/plain;qs=0.5", "text/html;qs=0.9"),
		{Template: "/docs/{id}", Method: http.MethodPut, Consumes: []string{"application/json"}, Handler: noop},
		get("/raw"),
	})

	head := func(method, path string, kv ...string) RequestHead {
		h := http.Header{}
		for i := 0; i+1 < len(kv); i += 2 {
			h.Add(kv[i], kv[i+1])
		}

		return RequestHead{Method: method, Path: path, Header: h}
	}

	t.Run("negotiates from accept", func(t *testing.T) {
		m, err := r.Resolve(head(http.MethodGet, "/docs/7", "Accept", "application/json"))
		require.NoError(t, err)
		assert.Equal(t, "/docs/{id}", m.Candidate.Endpoint().Template)
		assert.Equal(t, "application/json", m.ContentType.String())
		assert.Equal(t, "7", m.Params["id"])
	})

	t.Run("falls back to a later candidate", func(t *testing.T) {
		m, err := r.Resolve(head(http.MethodGet, "/docs/7", "Accept", "text/*"))
		require.NoError(t, err)
		assert.Equal(t, "/docs/{no}", m.Candidate.Endpoint().Template)
		assert.Equal(t, "text/html", m.ContentType.String())
		assert.Equal(t, "7", m.Params["no"])
	})

	t.Run("multiple accept headers are joined", func(t *testing.T) {
		m, err := r.Resolve(head(http.MethodGet, "/docs/7", "Accept", "image/png", "Accept", "text/plain"))
		require.NoError(t, err)
		assert.Equal(t, "text/plain", m.ContentType.String())
	})

	t.Run("not acceptable", func(t *testing.T) {
		_, err := r.Resolve(head(http.MethodGet, "/docs/7", "Accept", "image/*"))
		assert.ErrorIs(t, err, mediatype.ErrNotAcceptable)
	})

	t.Run("bad accept header", func(t *testing.T) {
		_, err := r.Resolve(head(http.MethodGet, "/docs/7", "Accept", "garbage"))
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("no produces and wildcard accept is octet stream", func(t *testing.T) {
		m, err := r.Resolve(head(http.MethodGet, "/raw"))
		require.NoError(t, err)
		assert.Equal(t, mediatype.OctetStream, m.ContentType)
	})

	t.Run("no produces and concrete accept", func(t *testing.T) {
		m, err := r.Resolve(head(http.MethodGet, "/raw", "Accept", "text/csv"))
		require.NoError(t, err)
		assert.Equal(t, "text/csv", m.ContentType.String())
	})

	t.Run("consumes matching type", func(t *testing.T) {
		m, err := r.Resolve(head(http.MethodPut, "/docs/7", "Content-Type", "application/json; charset=utf-8"))
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, m.Candidate.Method())
	})

	t.Run("unsupported media type", func(t *testing.T) {
		_, err := r.Resolve(head(http.MethodPut, "/docs/7", "Content-Type", "text/xml"))
		assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	})

	t.Run("unparsable content type", func(t *testing.T) {
		_, err := r.Resolve(head(http.MethodPut, "/docs/7", "Content-Type", "nope"))
		assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	})

	t.Run("routing errors come first", func(t *testing.T) {
		_, err := r.Resolve(head(http.MethodPost, "/docs/7", "Accept", "image/*"))
		assert.ErrorIs(t, err, ErrMethodNotAllowed)

		_, err = r.Resolve(head(http.MethodGet, "/nope"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("nil header", func(t *testing.T) {
		_, err := r.Resolve(RequestHead{Method: http.MethodGet, Path: "/raw"})
		assert.NoError(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	var order []string

	mw := func(name string) MiddlewareFunc {
		return func(next Handler) Handler {
			return HandlerFunc(func(c *async.Context) error {
				order = append(order, name)
				return next.ServeREST(c)
			})
		}
	}

	r := MustNewRouter([]Endpoint{
		{Template: "/", Method: http.MethodGet, Handler: HandlerFunc(func(*async.Context) error {
			order = append(order, "handler")
			return nil
		})},
	}, WithMiddleware(mw("first")))
	r.Use(mw("second"))

	c, _, err := r.Route(http.MethodGet, "/")
	require.NoError(t, err)

	h := r.Handler(c)
	_, cached := r.handlerCache.Load(c)
	assert.True(t, cached)

	require.NoError(t, h.ServeREST(nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)

	r.Use(mw("third"))
	order = nil
	require.NoError(t, r.Handler(c).ServeREST(nil))
	assert.Equal(t, []string{"first", "second", "third", "handler"}, order)
}

func TestWalk(t *testing.T) {
	r := MustNewRouter([]Endpoint{get("/b"), get("/a"), get("/c")})

	var seen []string
	require.NoError(t, r.Walk(func(c *Candidate) error {
		seen = append(seen, c.Endpoint().Template)
		return nil
	}))
	assert.Equal(t, []string{"/b", "/a", "/c"}, seen)

	stop := errors.New("stop")
	seen = nil
	err := r.Walk(func(c *Candidate) error {
		seen = append(seen, c.Endpoint().Template)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Len(t, seen, 1)
}

func BenchmarkResolve(b *testing.B) {
	r := MustNewRouter([]Endpoint{
		get("/articles", "application/json"),
		get("/articles/{category}", "application/json"),
		get("/articles/{category}/{id:[0-9]+}", "application/json", "text/html;qs=0.5"),
	})
	head := RequestHead{
		Method: http.MethodGet,
		Path:   "/articles/tech/42",
		Header: http.Header{"Accept": {"text/html,application/json;q=0.9"}},
	}

	for b.Loop() {
		r.Resolve(head) //nolint:errcheck
	}
}
