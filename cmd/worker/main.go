// Package main runs the reconciliation worker: finalize retries and the
// provisional clip sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clipstash/backend/config"
	"github.com/clipstash/backend/internal/clips"
	"github.com/clipstash/backend/internal/worker"
	"github.com/clipstash/backend/pkg/database"
	"github.com/clipstash/backend/pkg/queue"
	"github.com/clipstash/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	repo := clips.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	reconciler := worker.NewReconciler(
		repo,
		jobQueue,
		time.Duration(cfg.Worker.SweepIntervalMin)*time.Minute,
		time.Duration(cfg.Worker.ProvisionalTTLMin)*time.Minute,
		logger,
	)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(workerCtx)
	go reconciler.RunSweep(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
