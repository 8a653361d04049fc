package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/net/netutil"

	"github.com/vitalvas/restmux/config"
	"github.com/vitalvas/restmux/httphandlers"
	"github.com/vitalvas/restmux/rest"
	"github.com/vitalvas/restmux/resthandlers"
)

// Server serves a router over HTTP/1.1, and over cleartext HTTP/2 when
// enabled.
type Server struct {
	cfg     config.Config
	log     logrus.FieldLogger
	metrics *Metrics
	pool    *WorkerPool
	handler http.Handler
	srv     *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewServer builds a server for router. Every routed handler runs behind
// request ID and panic recovery middleware, plus the timeout middleware
// when cfg.HandlerTimeout is positive. The chain belongs to the server's
// dispatcher; router itself is not modified, so it can back several
// servers.
//
// The enabled proxy_headers, cors and compression blocks wrap the API
// handler in that order, outermost first. The metrics endpoint is not
// wrapped.
func NewServer(cfg config.Config, router *rest.Router, log logrus.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	middleware := []rest.MiddlewareFunc{
		resthandlers.RequestIDMiddleware(resthandlers.RequestIDConfig{TrustIncoming: true}),
	}

	// Recovery sits inside the timeout so it runs on the handler's goroutine.
	if cfg.HandlerTimeout > 0 {
		mw, err := resthandlers.TimeoutMiddleware(resthandlers.TimeoutConfig{Duration: cfg.HandlerTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create timeout middleware: %w", err)
		}
		middleware = append(middleware, mw)
	}

	middleware = append(middleware, resthandlers.RecoveryMiddleware(resthandlers.RecoveryConfig{Logger: log}))

	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: NewMetrics(),
		pool:    NewWorkerPool(cfg.Workers),
	}

	dispatcher := rest.NewDispatcher(router, s.pool,
		rest.WithChunkSize(cfg.ChunkSize),
		rest.WithLogger(log),
		rest.WithHandlerMiddleware(middleware...),
	)

	var api http.Handler = NewHandler(dispatcher,
		WithLogger(log),
		WithMetrics(s.metrics),
		WithReadBufferSize(cfg.ReadBufferSize),
	)

	api, err := wrapHTTP(api, cfg, router)
	if err != nil {
		return nil, err
	}

	metrics := s.metrics.Handler()
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.MetricsPath != "" && r.URL.Path == cfg.MetricsPath {
			metrics.ServeHTTP(w, r)
			return
		}

		api.ServeHTTP(w, r)
	})

	if cfg.H2C {
		handler = h2c.NewHandler(handler, &http2.Server{IdleTimeout: cfg.IdleTimeout})
	}

	s.handler = handler
	s.srv = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s, nil
}

// wrapHTTP applies the enabled net/http wrappers around api.
func wrapHTTP(api http.Handler, cfg config.Config, router *rest.Router) (http.Handler, error) {
	if c := cfg.Compression; c.Enabled {
		mw, err := httphandlers.CompressionMiddleware(httphandlers.CompressionConfig{
			Level:        c.Level,
			MinLength:    c.MinLength,
			ContentTypes: c.ContentTypes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create compression middleware: %w", err)
		}
		api = mw(api)
	}

	if c := cfg.CORS; c.Enabled {
		mw, err := httphandlers.CORSMiddleware(router, httphandlers.CORSConfig{
			AllowedOrigins:   c.AllowedOrigins,
			AllowedHeaders:   c.AllowedHeaders,
			ExposeHeaders:    c.ExposeHeaders,
			AllowCredentials: c.AllowCredentials,
			MaxAge:           int(c.MaxAge / time.Second),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create cors middleware: %w", err)
		}
		api = mw(api)
	}

	if c := cfg.ProxyHeaders; c.Enabled {
		mw, err := httphandlers.ProxyHeadersMiddleware(httphandlers.ProxyHeadersConfig{
			TrustedProxies:  c.TrustedProxies,
			EnableForwarded: c.EnableForwarded,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy headers middleware: %w", err)
		}
		api = mw(api)
	}

	return api, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Serve accepts connections on l until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(l net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConnections)
	}

	s.mu.Lock()
	s.addr = l.Addr()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"addr":            l.Addr().String(),
		"h2c":             s.cfg.H2C,
		"workers":         s.pool.Size(),
		"max_connections": s.cfg.MaxConnections,
	}).Info("server listening")

	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting connections, waits for active requests and then
// for every handler task still on the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	return err
}

// ListenAndServe listens on cfg.Listen and serves until ctx is done, then
// shuts down within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err = s.Shutdown(shutdownCtx)
	if serr := <-errc; err == nil {
		err = serr
	}

	return err
}
