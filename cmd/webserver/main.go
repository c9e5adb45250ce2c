package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secure-video-access/configs"
	"secure-video-access/internal/auth"
	"secure-video-access/internal/cache"
	"secure-video-access/internal/database"
	"secure-video-access/internal/directory"
	"secure-video-access/internal/handlers"
	"secure-video-access/internal/lifecycle"
	"secure-video-access/internal/middleware"
	"secure-video-access/internal/permissions"
	"secure-video-access/internal/views"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := configs.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hot := cache.NewHotCache(cfg.RedisURL, cfg.CacheTTL, log.Logger)
	resolver := directory.New(db)
	permStore := permissions.NewStore(db, resolver, log.Logger)
	countCache := cache.NewCountCache(db, hot, log.Logger)
	recorder := views.NewRecorder(db, permStore, countCache, hot, resolver, cfg, log.Logger)
	manager := lifecycle.NewManager(db, resolver, cfg, log.Logger)
	sweeper := lifecycle.NewSweeper(db, cfg, log.Logger)
	authService := auth.NewService(db, cfg)

	permHandler := handlers.NewPermissionHandler(permStore)
	viewHandler := handlers.NewViewHandler(recorder, countCache, permStore)
	lifecycleHandler := handlers.NewLifecycleHandler(manager)
	wsHandler := handlers.NewWebSocketHandler(log.Logger)

	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// View tracking accepts anonymous callers for public videos.
	tracking := router.Group("/api")
	tracking.Use(middleware.OptionalAuth(authService))
	tracking.POST("/videos/:id/views", viewHandler.Track)
	tracking.GET("/videos/:id/views", viewHandler.Counts)

	protected := router.Group("/api")
	protected.Use(middleware.Auth(authService))
	protected.Use(middleware.RateLimit(hot, cfg))

	protected.POST("/videos/:id/permissions", permHandler.Grant)
	protected.DELETE("/videos/:id/permissions/:user_id", permHandler.Revoke)
	protected.GET("/videos/:id/permissions", permHandler.List)
	protected.GET("/videos/:id/views/history", viewHandler.History)
	protected.DELETE("/videos/:id/views", viewHandler.Reset)
	protected.GET("/users/:id/videos", permHandler.AccessibleVideos)
	protected.GET("/users/:id/export", lifecycleHandler.Export)
	protected.POST("/users/:id/delete", lifecycleHandler.Delete)
	protected.GET("/users/:id/deletions", lifecycleHandler.DeletionHistory)

	router.GET("/ws", wsHandler.HandleConnections)
	go wsHandler.RunHub(ctx, hot.SubscribeUpdates(ctx))

	router.GET("/health", func(c *gin.Context) {
		redisStatus := "local_cache_only"
		if hot.Available() {
			redisStatus = "connected"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"services": map[string]string{
				"database": "connected",
				"redis":    redisStatus,
			},
		})
	})

	sweeper.Start(ctx)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	sweeper.Stop()
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	}
	if err := hot.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing cache")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info().Msg("Shutdown complete")
}
