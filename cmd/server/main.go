// Package main runs the clip API server: upload pipeline, clip reads, and
// the WebSocket progress feed, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clipstash/backend/config"
	"github.com/clipstash/backend/internal/auth"
	"github.com/clipstash/backend/internal/clips"
	"github.com/clipstash/backend/internal/media"
	"github.com/clipstash/backend/internal/middleware"
	"github.com/clipstash/backend/internal/progress"
	"github.com/clipstash/backend/internal/upload"
	"github.com/clipstash/backend/pkg/database"
	"github.com/clipstash/backend/pkg/queue"
	"github.com/clipstash/backend/pkg/redis"
	"github.com/clipstash/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis carries finalize retry jobs; the server still uploads without it.
	var finalizeQueue clips.FinalizeQueue
	if rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger); err != nil {
		logger.Warn("redis unavailable, finalize retries disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		finalizeQueue = queue.NewQueue(rdb.Client, logger)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := progress.NewHub(logger)

	repo := clips.NewRepository(pool)
	pipeline := upload.NewPipeline(
		repo,
		media.NewProber(cfg.FFmpeg.FFprobePath),
		media.NewExtractor(cfg.FFmpeg.FFmpegPath),
		upload.NewBrokerClient(cfg.Broker.BaseURL, nil, logger),
		upload.NewTransfer(nil, logger),
		upload.Config{
			Policy: upload.Policy{
				MaxFileSize: cfg.Upload.MaxFileSizeBytes(),
				MaxDuration: cfg.Upload.MaxDurationSec,
			},
			ThumbnailOffset: cfg.Upload.ThumbnailOffsetSec,
			PublicBaseURL:   storage.PublicBaseURL(cfg.Storage.ClipsBucket, cfg.Storage.PublicHost),
		},
		logger,
	)
	handler := clips.NewHandler(repo, pipeline, hub, finalizeQueue, cfg.Upload.TempDir, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.MaxMultipartMemory = 8 << 20 // larger bodies spool to disk

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/feed", handler.Feed)
	api.GET("/uploads/:id/progress", handler.WatchProgress)

	authed := api.Group("", middleware.JWT(jwtService))
	authed.POST("/clips", handler.Upload)
	authed.GET("/clips", handler.ListMine)
	authed.GET("/clips/:id", handler.Get)
	authed.DELETE("/clips/:id", handler.Delete)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
