package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"socialsync/config"
	"socialsync/database"
	"socialsync/docstore"
	"socialsync/handlers"
	"socialsync/identity"
	"socialsync/media"
	"socialsync/middleware"
	"socialsync/notify"
	"socialsync/routes"
	"socialsync/services"
	"socialsync/session"
	"socialsync/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	sessions, subs, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	httpClient := &http.Client{Timeout: cfg.GetRequestTimeout()}
	store := docstore.NewClient(cfg.Firebase.FirestoreURL, cfg.Firebase.ProjectID, cfg.Firebase.Database, httpClient, logger.Named("docstore"))
	idp := identity.NewClient(cfg.Firebase.IdentityURL, cfg.Firebase.APIKey, httpClient, logger.Named("identity")).
		WithSecureTokenURL(cfg.Firebase.TokenURL)

	photos, err := media.NewProcessor(media.Config{
		MaxDimension:  cfg.Media.MaxDimension,
		JPEGQuality:   cfg.Media.JPEGQuality,
		CloudinaryURL: cfg.Media.CloudinaryURL,
		Folder:        cfg.Media.Folder,
	})
	if err != nil {
		return err
	}

	var googleOAuth *oauth2.Config
	if cfg.GoogleEnabled() {
		googleOAuth = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	} else {
		logger.Info("google sign-in code flow disabled")
	}

	syncCfg := services.SyncConfig{
		PageSize:    cfg.Sync.PageSize,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Concurrency: cfg.Sync.Concurrency,
	}
	auth := services.NewAuthService(idp, store, sessions, photos, googleOAuth, logger.Named("auth"))
	posts := services.NewPostService(store, syncCfg, logger.Named("posts"))
	users := services.NewUserService(store, sessions, photos, syncCfg, logger.Named("users"))

	notifier := notify.New(subs, notify.Config{
		PublicKey:  cfg.Push.PublicKey,
		PrivateKey: cfg.Push.PrivateKey,
		Subscriber: cfg.Push.Subscriber,
	}, logger.Named("push"))
	if !notifier.Enabled() {
		logger.Warn("VAPID keys not set, push notifications disabled")
	}
	defer notifier.Wait()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewManager(logger.Named("ws"))
	go hub.Start(hubCtx)
	defer func() {
		stopHub()
		<-hub.Done()
	}()

	tokens := middleware.NewTokens(cfg.Auth.JWTSecret, cfg.GetTokenTTL())
	limiter := middleware.NewIPRateLimiter(cfg.Server.RateLimit, time.Minute)
	go pruneLimiter(hubCtx, limiter)

	h := handlers.New(handlers.Options{
		Auth:     auth,
		Posts:    posts,
		Users:    users,
		Tokens:   tokens,
		Notifier: notifier,
		Hub:      hub,
		Logger:   logger.Named("api"),
	})
	router := routes.SetupRouter(routes.Options{
		Handler:        h,
		Sessions:       auth,
		Tokens:         tokens,
		Hub:            hub,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.GetRequestTimeout(),
		Logger:         logger.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr), zap.String("project", cfg.Firebase.ProjectID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStores connects Mongo for sessions and push subscriptions, or falls back
// to memory when no URI is configured.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, notify.SubscriptionStore, func(), error) {
	if cfg.Mongo.URI == "" {
		logger.Warn("MONGODB_URI not set, sessions and push subscriptions are kept in memory")
		return session.NewMemoryStore(), notify.NewMemorySubscriptions(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	m, err := database.ConnectMongo(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectAttempts, logger.Named("mongo"))
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Disconnect(ctx); err != nil {
			logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	sessions := database.NewSessionStore(m.DB.Collection(database.SessionsCollection))
	subs := database.NewSubscriptionStore(m.DB.Collection(database.SubscriptionsCollection))
	return sessions, subs, closeFn, nil
}

func pruneLimiter(ctx context.Context, limiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
