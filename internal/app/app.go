// Package app owns the process lifecycle: it builds the service graph from configuration,
// runs the HTTP server and tears resources down in reverse order of acquisition.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"discussion-agent/internal/logging"
)

// Closer is a named teardown step.
type Closer struct {
	Name  string
	Close func() error
}

// App owns the lifecycle of the HTTP server and the resources behind it.
type App struct {
	addr            string
	shutdownTimeout time.Duration
	logger          logging.Logger
	server          *http.Server
	closers         []Closer
}

// New creates an App serving handler on addr.
func New(addr string, handler http.Handler, logger logging.Logger) (*App, error) {
	if addr == "" {
		return nil, errors.New("app: listen address must be provided")
	}
	if handler == nil {
		return nil, errors.New("app: handler must be provided")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &App{
		addr:            addr,
		shutdownTimeout: 10 * time.Second,
		logger:          logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// SetShutdownTimeout bounds how long in-flight requests get to finish.
func (a *App) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		a.shutdownTimeout = d
	}
}

// AddCloser registers a teardown step. Steps run in reverse registration order.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, Closer{Name: name, Close: fn})
}

// Run serves until ctx is cancelled or the listener fails, then shuts down gracefully
// and runs the teardown list.
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.addr)
	if err != nil {
		return errors.Join(fmt.Errorf("app: listen on %s: %w", a.addr, err), a.Close())
	}
	return a.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	a.logger.With(logging.F("addr", listener.Addr().String())).Info("starting http server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	return errors.Join(runErr, a.Close())
}

// Close runs the teardown list once, newest first, and reports every failure.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.logger.With(logging.F("resource", c.Name), logging.F("err", err)).Error("teardown failed")
			errs = append(errs, fmt.Errorf("app: close %s: %w", c.Name, err))
			continue
		}
		a.logger.With(logging.F("resource", c.Name)).Debug("closed")
	}
	a.closers = nil
	return errors.Join(errs...)
}
