package resthandlers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vitalvas/restmux/async"
	"github.com/vitalvas/restmux/rest"
)

// RecoveryConfig configures the Recovery middleware behaviour.
type RecoveryConfig struct {
	// Logger receives the recovered value when a panic occurs. When nil,
	// no logging is performed.
	Logger logrus.FieldLogger
}

// RecoveryMiddleware returns a middleware that recovers from panics in
// downstream handlers and turns them into an error, which the dispatcher
// answers with 500 Internal Server Error.
func RecoveryMiddleware(cfg RecoveryConfig) rest.MiddlewareFunc {
	log := cfg.Logger

	return func(next rest.Handler) rest.Handler {
		return rest.HandlerFunc(func(c *async.Context) (err error) {
			defer func() {
				if v := recover(); v != nil {
					if log != nil {
						log.WithFields(logrus.Fields{
							"request_id": c.ID(),
							"method":     c.Request().Method,
							"path":       c.Request().Path,
							"panic":      v,
						}).Error("handler panicked")
					}

					err = fmt.Errorf("resthandlers: recovered panic: %v", v)
				}
			}()

			return next.ServeREST(c)
		})
	}
}
