package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easelapp/easel-api/internal/config"
	"github.com/easelapp/easel-api/internal/imaging"
	"github.com/easelapp/easel-api/internal/platform/comfy"
	"github.com/easelapp/easel-api/internal/platform/memdoc"
	"github.com/easelapp/easel-api/internal/service/auth"
	"github.com/easelapp/easel-api/internal/session"
	"github.com/easelapp/easel-api/internal/settings"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Core services
	doc      *memdoc.Document
	client   *comfy.Client
	conn     *session.Connection
	settings *settings.Store
	session  *session.Session

	jwtService auth.JWTService
}

// newApplication creates a new application instance with all dependencies
// initialized. The backend client is constructed here but not connected;
// Run establishes the connection as part of the server lifecycle.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_hours", cfg.Auth.TokenLifetimeHours)

	app.doc = memdoc.New(imaging.Extent{
		Width:  cfg.Document.Width,
		Height: cfg.Document.Height,
	})

	app.client, err = comfy.New(cfg.Backend, logger.With("component", "backend_client"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend client: %w", err)
	}

	app.conn = session.NewConnection()
	app.settings = settings.New()
	app.session = session.New(app.doc, app.conn, app.settings, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run connects to the generation backend, starts the event pump, and
// serves HTTP until the context is cancelled or a shutdown signal
// arrives.
func (app *application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.client.Connect(runCtx); err != nil {
		return fmt.Errorf("failed to connect to backend: %w", err)
	}
	app.conn.Connect(app.client)
	app.logger.Info("Backend connected", "url", app.config.Backend.URL)

	// The client polls the backend and the session consumes its
	// messages until runCtx is cancelled.
	go app.client.Run(runCtx)
	go app.session.Listen(runCtx)

	router := app.setupRouter()
	if err := app.startHTTPServer(runCtx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	app.conn.Disconnect()
	app.logger.Info("Application shutdown completed")
}
