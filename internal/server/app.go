// Package server wires the rtmp-auth components together: the state backend
// and store, the callback API, the admin frontend, the expiry loop and the
// optional gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/netx"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/api"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/config"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/frontend"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/health"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/store"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	backend backends.Backend
	store   *store.Store
}

// NewApp opens the configured backend and loads the store.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	backend, err := backends.Open(ctx, c.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("store backend init error: %w", err)
	}

	s, err := store.New(ctx, backend, c.Applications, store.WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("store init error: %w", err)
	}

	return &App{config: c, logger: logger, backend: backend, store: s}, nil
}

// Store returns the loaded store.
func (app *App) Store() *store.Store {
	return app.store
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-sigs:
				app.logger.Info(ctx, "caught signal", "signal", s.String())
				if s == syscall.SIGHUP {
					continue
				}
				cancelFunc()
				return
			}
		}
	}()
}

func (app *App) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// stops every component and closes the backend.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	apiHandler := api.NewHandler(app.store, app.logger)
	frontendHandler := frontend.NewHandler(app.store, app.logger,
		frontend.WithPrefix(app.config.Frontend.Prefix),
		frontend.WithInsecure(app.config.Frontend.Insecure),
		frontend.WithPassword(app.config.Frontend.Username, app.config.Frontend.PasswordHash),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv := app.httpServer(app.config.API.Address, apiHandler.Router())
		return netx.Serve(ctx, srv, app.logger.With("module", "api"))
	})

	g.Go(func() error {
		srv := app.httpServer(app.config.Frontend.Address, frontendHandler.Router())
		return netx.Serve(ctx, srv, app.logger.With("module", "frontend"))
	})

	g.Go(func() error {
		app.store.RunExpiry(ctx, app.config.ExpiryInterval.Duration)
		return nil
	})

	if app.config.Health.Address != "" {
		g.Go(func() error {
			check := func(ctx context.Context) error {
				_, err := app.store.Snapshot(ctx)
				return err
			}
			hs := health.NewServer(app.config.Health.Address, check, app.config.Health.Interval.Duration, app.logger)
			return hs.Run(ctx)
		})
	}

	err := g.Wait()
	app.logger.Info(context.Background(), "Shutting down")

	if closeErr := app.backend.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close backend: %w", closeErr))
	}
	return err
}
