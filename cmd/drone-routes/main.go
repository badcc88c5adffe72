package main

import (
	"context"
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

	"github.com/mr1hm/go-drone-routes/internal/api"
	"github.com/mr1hm/go-drone-routes/internal/config"
	"github.com/mr1hm/go-drone-routes/internal/dispatch"
	"github.com/mr1hm/go-drone-routes/internal/logging"
	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/metrics"
	"github.com/mr1hm/go-drone-routes/internal/models"
	"github.com/mr1hm/go-drone-routes/internal/repository"
	"github.com/mr1hm/go-drone-routes/internal/stream"
	"github.com/mr1hm/go-drone-routes/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "planner", cfg.Planner.URL)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run journal writes happen off the request path.
	journal := worker.NewPool("journal", cfg.Worker.Count, cfg.Worker.BufferSize, func(ctx context.Context, run *models.Run) error {
		return db.Add(ctx, run)
	})
	journal.Start(ctx)

	broadcaster := stream.NewBroadcaster()

	view := mapview.New(cfg.Map.Options())
	planner := dispatch.NewClient(cfg.Planner.URL, cfg.Planner.Timeout)
	orch := dispatch.NewOrchestrator(planner, view, journal, broadcaster)
	renderer := mapview.NewStaticRenderer(view)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))
	router.Use(metrics.Middleware())

	handler := api.NewHandler(orch, view, renderer, db, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// No more runs can be submitted once the server is down; flush the journal.
	journal.Stop()
	cancel()

	slog.Info("shutdown complete")
}

