package config

import (
	"fmt"
	"net/http"

	"github.com/vitalvas/restmux/rest"
)

// EndpointConfig is one entry of the static registration table. Handler
// names a handler supplied by the application.
type EndpointConfig struct {
	Path     string   `yaml:"path"`
	Method   string   `yaml:"method"`
	Produces []string `yaml:"produces"`
	Consumes []string `yaml:"consumes"`
	Handler  string   `yaml:"handler"`
	Prefix   bool     `yaml:"prefix"`
	Name     string   `yaml:"name"`
}

// Endpoints resolves the configured table against named handlers. A
// missing method means GET. An unknown handler name is an error.
func (c Config) Endpoints(handlers map[string]rest.Handler) ([]rest.Endpoint, error) {
	out := make([]rest.Endpoint, 0, len(c.Routes))

	for _, e := range c.Routes {
		h, ok := handlers[e.Handler]
		if !ok {
			return nil, fmt.Errorf("%w: endpoint %q refers to unknown handler %q", ErrInvalidConfig, e.Path, e.Handler)
		}

		method := e.Method
		if method == "" {
			method = http.MethodGet
		}

		out = append(out, rest.Endpoint{
			Template: e.Path,
			Method:   method,
			Produces: e.Produces,
			Consumes: e.Consumes,
			Handler:  h,
			Prefix:   e.Prefix,
			Name:     e.Name,
		})
	}

	return out, nil
}
