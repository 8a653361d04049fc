package async

import (
	"context"
	"net/http"

	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/stream"
)

// Request is the handler's view of an inbound request.
type Request struct {
	Method string
	Path   string
	Header http.Header
	// RemoteAddr is the client address, "host:port" or a bare IP when it
	// came from a proxy header.
	RemoteAddr string
	Host       string
	Scheme     string
	Params     map[string]string
	// ContentType is the negotiated response type.
	ContentType mediatype.MediaType
	// Body blocks on Read until the transport hands off data.
	Body *stream.Handoff

	ctx *Context
}

// Param returns a path parameter, or "" if it is not set.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Context returns the request's context.Context.
func (r *Request) Context() context.Context {
	return r.ctx.Context()
}
