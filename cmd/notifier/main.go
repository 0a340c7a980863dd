package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/dbs-storefront/internal/config"
	"github.com/ariefcatur/dbs-storefront/internal/followup"
	kafkax "github.com/ariefcatur/dbs-storefront/internal/kafka"
	"github.com/ariefcatur/dbs-storefront/internal/logging"
	"github.com/ariefcatur/dbs-storefront/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	service := cfg.ServiceName + "-notifier"
	logger = logger.With(zap.String("service", service))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	w := &followup.Worker{Redis: rdb, ServiceName: service, Log: logger.Named("worker")}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, followup.Topics, cfg.NotifierWorkers, logger.Named("consumer"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("consumer started",
			zap.String("group", cfg.NotifierGroup),
			zap.Strings("topics", followup.Topics),
			zap.Int("workers", cfg.NotifierWorkers))
		return cons.Start(gctx, w.HandleMessage)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down consumer")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
}
