// Package httphandlers provides net/http wrappers that sit in front of the
// rest transport: proxy header handling, CORS and response compression.
//
// Unlike resthandlers they see the raw *http.Request and
// http.ResponseWriter, so they can rewrite the peer address before the
// request head is built, answer CORS preflights for any routed path, and
// encode the framed body on its way to the connection.
//
// Each constructor takes a config struct and returns a wrapper plus an
// error when the config can be invalid:
//
//	cors, err := httphandlers.CORSMiddleware(router, httphandlers.CORSConfig{
//	    AllowedOrigins: []string{"https://*.example.com"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := cors(api)
//
// The transport server composes them as proxy headers, then CORS, then
// compression, when the matching config blocks are enabled.
package httphandlers
