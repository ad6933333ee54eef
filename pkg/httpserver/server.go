// Package httpserver runs an http.Handler with graceful shutdown on context
// cancellation or SIGINT/SIGTERM, and provides liveness/readiness handlers.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// Server wraps http.Server with graceful shutdown and logging.
type Server struct {
	opts *options

	mu   sync.Mutex
	srv  *http.Server
	once sync.Once
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	o := &options{
		addr:            ":8080",
		shutdownTimeout: 10 * time.Second,
		logger:          logger.Noop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Server{opts: o}
}

// Run starts listening and blocks until ctx is cancelled, a termination
// signal arrives or the listener fails. Start failures wrap ErrStart.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, ErrRunning)
	}
	srv := &http.Server{
		Addr:         s.opts.addr,
		Handler:      handler,
		ReadTimeout:  s.opts.readTimeout,
		WriteTimeout: s.opts.writeTimeout,
		IdleTimeout:  s.opts.idleTimeout,
	}
	s.srv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.opts.logger.InfoContext(ctx, "http server started", logger.Component("httpserver"), "addr", s.opts.addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = s.shutdownAndWait(errCh)
	case sig := <-stop:
		s.opts.logger.Info("termination signal received", logger.Component("httpserver"), "signal", sig.String())
		runErr = s.shutdownAndWait(errCh)
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, runErr)
	}
	return nil
}

func (s *Server) shutdownAndWait(errCh <-chan error) error {
	if err := s.Shutdown(context.Background()); err != nil {
		s.opts.logger.Error("graceful shutdown failed", logger.Component("httpserver"), logger.Error(err))
	}
	return <-errCh
}

// Shutdown stops the server and runs the stop hooks. It is safe for
// repeated calls; only the first one does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.once.Do(func() {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		for _, h := range s.opts.stopHooks {
			if err := h(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.opts.logger.Info("http server stopped", logger.Component("httpserver"))
	})

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrShutdown}, errs...)...)
	}
	return nil
}
