package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"identity-service/internal/config"
)

// App is the identity service process: the OAuth sign-in/connect routes,
// the session API and the infrastructure (database, redis) behind them.
type App struct {
	httpServer *http.Server
	cleanup    func() error
}

// New connects infrastructure, wires the account flow and prepares the HTTP
// server. Nothing listens until Run.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	router, cleanup, err := setupHTTP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           withCORS(router, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return &App{
		httpServer: server,
		cleanup:    cleanup,
	}, nil
}

// Run blocks serving requests until Shutdown.
func (a *App) Run() error {
	return a.httpServer.ListenAndServe()
}

// Shutdown drains in-flight callbacks first, then closes the database and
// redis connections they use.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownErr := a.httpServer.Shutdown(ctx)

	var cleanupErr error
	if a.cleanup != nil {
		cleanupErr = a.cleanup()
	}
	return errors.Join(shutdownErr, cleanupErr)
}
