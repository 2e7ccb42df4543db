package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnTengye/dealflow/config"
	"github.com/AnTengye/dealflow/handler"
	"github.com/AnTengye/dealflow/middleware"
	"github.com/AnTengye/dealflow/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded successfully", "database", cfg.Database.Driver, "storage", cfg.Storage.Driver, "ai", cfg.AI.Provider)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				slog.Warn("failed to close resource", "error", err)
			}
		}
	}()

	store, err := newStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}

	blobs, err := service.NewBlobStore(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		closers = append(closers, c)
	}

	completer, err := service.NewCompleter(ctx, &cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to initialize ai completer: %w", err)
	}
	if c, ok := completer.(io.Closer); ok {
		closers = append(closers, c)
	}

	notifier, err := service.NewNotifier(&cfg.Kafka)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	if c, ok := notifier.(io.Closer); ok {
		closers = append(closers, c)
	}

	counter := middleware.Counter(middleware.NewMemoryCounter())
	if cfg.Redis.URL != "" {
		client, err := middleware.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		closers = append(closers, client)
		counter = middleware.NewRedisCounter(client)
	}

	documents := service.NewDocumentService(store, blobs, completer)
	dispatcher := service.NewDispatcher(store, notifier, service.NewKYCMailer(completer))
	deals := service.NewDealService(store, documents, dispatcher, cfg.Workflow.DefaultOwner, cfg.Workflow.DefaultTenant)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimitWith(counter, cfg.RateLimit.Requests, cfg.RateLimit.Window))

	handler.Register(router, cfg, deals, documents)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.AI.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited gracefully")
	return nil
}

func newStore(ctx context.Context, cfg *config.DatabaseConfig) (service.Store, error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		return service.NewMemoryStore(), nil
	case "postgres":
		db, err := service.ConnectPostgres(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return service.NewPostgresStore(db), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
