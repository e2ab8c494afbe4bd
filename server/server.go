// Package server exposes the session manager as a JSON API for the dashboard
// frontend.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kaos-tools/kaos-ui/diagnostics"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/proxy"
	"github.com/kaos-tools/kaos-ui/session"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type Options struct {
	AllowedOrigins []string
	// Connection holds defaults applied to connect requests.
	Connection  k8s.Options
	Diagnostics diagnostics.Options
	Gatherer    prometheus.Gatherer
	Logger      *zap.SugaredLogger
	Now         func() time.Time
}

type routes struct {
	manager *session.Manager
	opts    Options
	log     *zap.SugaredLogger
}

// New builds the API router for manager.
func New(manager *session.Manager, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Diagnostics.Logger == nil {
		opts.Diagnostics.Logger = opts.Logger
	}
	s := &routes{manager: manager, opts: opts, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonHeaders)

		r.Get("/session", s.getSession)
		r.Get("/session/history", s.getHistory)
		r.Post("/session/connect", s.connect)
		r.Post("/session/demo", s.enterDemo)
		r.Post("/session/disconnect", s.disconnect)
		r.Post("/refresh", s.refresh)

		r.Get("/graph", s.graph)
		r.Get("/diagnostics", s.diagnose)

		r.Get("/resources/{kind}", s.listResources)
		r.Post("/resources/{kind}", s.createResource)
		r.Get("/resources/{kind}/{namespace}/{name}", s.getResource)
		r.Put("/resources/{kind}/{namespace}/{name}", s.updateResource)
		r.Delete("/resources/{kind}/{namespace}/{name}", s.deleteResource)

		r.Get("/selection", s.getSelection)
		r.Put("/selection", s.putSelection)
		r.Delete("/selection", s.deleteSelection)
	})

	return proxy.CORS(r, opts.AllowedOrigins)
}

func jsonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Run serves handler on addr until ctx ends, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log *zap.SugaredLogger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return Serve(ctx, listener, handler, log)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	log.Infow("serving", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Infow("server stopped", "addr", listener.Addr().String())
	return nil
}
