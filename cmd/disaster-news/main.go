package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-disaster-news/internal/api"
	"github.com/mr1hm/go-disaster-news/internal/config"
	"github.com/mr1hm/go-disaster-news/internal/logging"
	"github.com/mr1hm/go-disaster-news/internal/monitor"
	"github.com/mr1hm/go-disaster-news/internal/newsapi"
	"github.com/mr1hm/go-disaster-news/internal/normalize"
	"github.com/mr1hm/go-disaster-news/internal/observability"
	"github.com/mr1hm/go-disaster-news/internal/repository"
	"github.com/mr1hm/go-disaster-news/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"news_api", cfg.NewsAPI.BaseURL,
	)

	db, err := repository.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	metrics := observability.NewMetrics()
	client := newsapi.NewClient(cfg.NewsAPI.BaseURL, cfg.NewsAPI.Timeout())
	normalizer := normalize.New(client, metrics, cfg.Normalize.SkipMalformedLocations)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live feed of recorded runs for /api/runs/stream
	broadcaster := stream.NewBroadcaster()

	mgr := monitor.NewManager(cfg, normalizer, db, broadcaster, metrics)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(normalizer, client, db, mgr, broadcaster, metrics)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// Close streams first so Shutdown is not held open by SSE clients.
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// No handler can Trigger past this point.
	cancel()
	mgr.Stop()

	slog.Info("shutdown complete")
}
