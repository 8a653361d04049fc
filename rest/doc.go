/*
Package rest routes requests to resource endpoints and dispatches them to
blocking handlers over an async.Context.

Endpoints are registered once, as a static table:

	router, err := rest.NewRouter([]rest.Endpoint{
	    {Template: "/fruits", Method: http.MethodGet, Produces: []string{"application/json"}, Handler: listFruits},
	    {Template: "/fruits/{name}", Method: http.MethodGet, Produces: []string{"application/json"}, Handler: getFruit},
	    {Template: "/fruits/{name}", Method: http.MethodPut, Consumes: []string{"application/json"}, Handler: putFruit},
	})

A template that does not compile aborts construction; no partially built
router is returned.

# Candidate Ordering

For a request path, every endpoint whose pattern matches is a candidate.
Candidates are ordered by, in turn:

 1. compiled pattern length, longest first
 2. number of named groups, most first
 3. number of groups declared with an explicit fragment, most first

Remaining ties keep registration order. Rule 2 means that "/api/widgets/{another}"
outranks "/api/widgets/something-else" for the path "/api/widgets/something-else",
because both compile to expressions of the same length.

# Resolution

Resolve walks the ordered candidates:

  - candidates that only matched a prefix of the path are skipped unless the
    endpoint is a Prefix endpoint
  - the first candidates with the request method are kept; HEAD falls back
    to GET; if none has the method the result is a *MethodNotAllowedError
  - candidates that do not consume the request Content-Type are dropped
    (ErrUnsupportedMediaType)
  - the response type is negotiated from the Accept header; a candidate that
    cannot produce an acceptable type yields to the next one
    (mediatype.ErrNotAcceptable)

StatusCode maps each of these errors to its HTTP status.

# Dispatch

A Dispatcher resolves the request head, creates the async.Context, sets the
negotiated Content-Type and runs the handler on an Executor. Errors returned
by a handler before anything was written become a plain-text status
response.
*/
package rest
