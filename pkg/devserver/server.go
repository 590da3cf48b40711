// Package devserver serves the output directory during development and pushes changed assets
// to connected browsers.
package devserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"
)

// Options configures a Server.
type Options struct {
	Address string
	Root    string
	// Registry receives the server's collectors and is exposed on /__metrics. A new registry
	// is created if it is nil.
	Registry *prometheus.Registry
	Logger   *zerolog.Logger
}

// Server is the development HTTP server.
type Server struct {
	opts   Options
	hub    *Hub
	server *http.Server
}

func New(opts Options) *Server {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	s := &Server{
		opts: opts,
		hub:  NewHub(opts.Registry),
	}
	s.server = &http.Server{
		Handler:     s.Handler(),
		Addr:        opts.Address,
		ReadTimeout: 15 * time.Second,
	}
	return s
}

// Hub returns the live-reload hub. Pass it to pipeline.WithReloader.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the complete handler chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle(reloadPath, s.hub).Methods(http.MethodGet)
	r.HandleFunc(reloadScriptPath, serveReloadScript).Methods(http.MethodGet)
	r.Handle(metricsPath, promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(injectMiddleware(http.FileServer(http.Dir(s.opts.Root))))

	sm := secure.New(secure.Options{
		IsDevelopment:      true,
		BrowserXssFilter:   true,
		ContentTypeNosniff: true,
		FrameDeny:          true,
	})

	return sm.Handler(makeLogMiddleware(s.opts.Logger, r))
}

// Serve accepts connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(l)
	}()

	s.opts.Logger.Info().Msgf("Serving %s on http://%s", s.opts.Root, l.Addr())

	select {
	case err := <-errCh:
		if eris.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "dev server failed")
	case <-ctx.Done():
	}

	// Open event streams would keep Shutdown waiting.
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "failed to stop dev server")
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return eris.Wrapf(err, "failed to listen on %s", s.opts.Address)
	}
	return s.Serve(ctx, l)
}
