// Package transport serves a rest.Dispatcher over net/http.
//
// For every request the ServeHTTP goroutine acts as the event loop: it is
// the only goroutine touching the http.ResponseWriter and it applies the
// headers and frames the handler produces, one at a time. A second
// goroutine pumps the request body into the request's handoff stream, and
// the handler itself runs on the dispatcher's executor.
package transport
