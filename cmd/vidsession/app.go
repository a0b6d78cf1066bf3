package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/vidsession/internal/cache"
	"github.com/nkiryanov/vidsession/internal/db"
	"github.com/nkiryanov/vidsession/internal/handlers"
	"github.com/nkiryanov/vidsession/internal/logger"
	"github.com/nkiryanov/vidsession/internal/repository/postgres"
	"github.com/nkiryanov/vidsession/internal/repository/redis"
	"github.com/nkiryanov/vidsession/internal/service/auth"
	"github.com/nkiryanov/vidsession/internal/service/auth/tokencodec"
	"github.com/nkiryanov/vidsession/internal/service/hasher"
	"github.com/nkiryanov/vidsession/internal/service/oauth"
	"github.com/nkiryanov/vidsession/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	rdb, err := cache.Connect(ctx, c.RedisURL, 0)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}
	app.closers = append(app.closers, func() { _ = rdb.Close() })

	// Initialize repositories
	storage := postgres.NewStorage(pool)
	credentials := redis.NewCredentialStore(rdb, hasher.Default, c.CacheTimeout)
	states := redis.NewOAuthStateStore(rdb, c.CacheTimeout)

	// Initialize services
	accessCodec, err := tokencodec.New(tokencodec.Config{SecretKey: c.SecretKey, TTL: c.AccessTTL})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating access token codec. Err: %w", err)
	}
	refreshCodec, err := tokencodec.New(tokencodec.Config{SecretKey: c.RefreshSecretKey, TTL: c.RefreshTTL})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating refresh token codec. Err: %w", err)
	}

	userService := user.NewService(hasher.Default, storage)
	authService, err := auth.NewService(
		auth.Config{IssuanceWindow: c.IssuanceWindow},
		accessCodec,
		refreshCodec,
		credentials,
		userService,
		logger.WithGroup("auth"),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	var providers []*oauth.Provider
	if c.GoogleClientID != "" {
		google, err := oauth.Discover(ctx, oauth.ProviderConfig{
			Name:         oauth.ProviderGoogle,
			IssuerURL:    oauth.GoogleIssuer,
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURL:  c.GoogleRedirectURL,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		providers = append(providers, google)
	}
	oauthService := oauth.NewService(states, providers...)

	transport := auth.NewTransport(auth.TransportConfig{
		CookieSecure: c.CookieSecure,
		RefreshTTL:   authService.RefreshTTL(),
	})

	app.Handler = handlers.NewRouter(
		handlers.RouterConfig{FrontendURL: c.FrontendURL, CookieSecure: c.CookieSecure},
		authService,
		transport,
		oauthService,
		userService,
		logger,
	)

	return app, nil
}

// Close releases connections in reverse order
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
