// Package resthandlers provides middleware for rest routers.
//
// Each constructor takes a config struct and returns a rest.MiddlewareFunc,
// plus an error when the config can be invalid:
//
//	recovery := resthandlers.RecoveryMiddleware(resthandlers.RecoveryConfig{Logger: log})
//
//	timeout, err := resthandlers.TimeoutMiddleware(resthandlers.TimeoutConfig{Duration: 5 * time.Second})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	router.Use(resthandlers.RequestIDMiddleware(resthandlers.RequestIDConfig{}), timeout, recovery)
//
// The timeout runs the rest of the chain on its own goroutine, so recovery
// must come after it.
//
// Middleware that rejects a request returns a *rest.StatusError; the
// dispatcher turns it into the response.
package resthandlers
