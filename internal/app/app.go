// Package app assembles the gateway: configuration, logging, persistence,
// the resource registries, the websocket hub and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"sockrest/internal/catalog"
	"sockrest/internal/config"
	"sockrest/internal/directory"
	"sockrest/internal/events"
	"sockrest/internal/infrastructure"
	"sockrest/internal/resource"
	"sockrest/internal/store"
	transport "sockrest/internal/transport/http"
	"sockrest/internal/websocket"
)

// App holds the wired gateway.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	hub       *websocket.Hub
	publisher events.Publisher
	server    *http.Server

	shutdownTracing func(context.Context) error
}

// New wires the application from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "app"))

	shutdownTracing, err := infrastructure.InitTracing(cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := store.Open(cfg.Database.DSN, logger,
		&directory.User{},
		&catalog.Product{},
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		amqpPub, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange, logger)
		if err != nil {
			return nil, fmt.Errorf("connect event broker: %w", err)
		}
		publisher = amqpPub
	}

	hub := websocket.NewHub(logger)

	users := directory.NewResource(db,
		resource.WithBroadcaster[directory.User](hub),
		resource.WithPublisher[directory.User](publisher),
		resource.WithLogger[directory.User](logger),
	)
	products := catalog.NewResource(db,
		resource.WithBroadcaster[catalog.Product](hub),
		resource.WithPublisher[catalog.Product](publisher),
		resource.WithLogger[catalog.Product](logger),
	)

	registries := map[string]*resource.Registry{
		users.Name():    users.Actions(),
		products.Name(): products.Actions(),
	}

	router := transport.NewRouter(hub, registries, cfg, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		db:              db,
		hub:             hub,
		publisher:       publisher,
		server:          server,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Run starts the hub and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.hub.Start()
	defer a.hub.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// shutdown drains the server and releases external resources.
func (a *App) shutdown() error {
	a.logger.Info("shutting down",
		slog.Duration("timeout", a.cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("server shutdown: %w", err)
	}
	if err := a.publisher.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close publisher: %w", err)
	}
	if err := a.shutdownTracing(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("shutdown tracing: %w", err)
	}

	// time for in-flight write pumps to notice closed channels
	time.Sleep(50 * time.Millisecond)
	return firstErr
}
