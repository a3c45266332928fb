package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/fedeegea/baggage-backend/internal/bus"
	"github.com/fedeegea/baggage-backend/internal/idempotency"
	"github.com/fedeegea/baggage-backend/internal/ops"
	"github.com/fedeegea/baggage-backend/internal/watchdog"
	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/fedeegea/baggage-backend/pkg/logger"
	"github.com/fedeegea/baggage-backend/pkg/metrics"
	"github.com/fedeegea/baggage-backend/pkg/pubsub"
	"github.com/fedeegea/baggage-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "watchdog"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "watchdog",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis)
	requireResource(ctx, logg, "redis", err)
	defer closeResource(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer closeResource(ctx, logg, "pubsub", pubsubClient.Close)

	subscription := pubsubClient.EventsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "events subscription", errors.New("subscription not configured"))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	watchdogMetrics := metrics.NewWatchdogMetrics(registry)

	manager, err := idempotency.NewManager(redisClient, cfg.Watchdog.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	sink, err := watchdog.NewCSVSink(cfg.Watchdog.ReportPath)
	requireResource(ctx, logg, "report sink", err)

	watchdogService, err := watchdog.NewService(watchdog.ServiceParams{
		Config:  cfg.Watchdog,
		Manager: manager,
		Sink:    sink,
		Logger:  logg,
		Metrics: watchdogMetrics,
	})
	requireResource(ctx, logg, "watchdog service", err)

	subscriber, err := bus.NewSubscriber(bus.SubscriberParams{
		Subscription:    subscription,
		Handler:         watchdogService,
		Logger:          logg,
		Metrics:         watchdogMetrics,
		ConnectAttempts: cfg.PubSub.ConnectAttempts,
		ConnectDelay:    cfg.PubSub.ConnectDelay,
	})
	requireResource(ctx, logg, "bus subscriber", err)

	opsServer, err := ops.NewServer(cfg.Ops, logg, registry, []ops.Dependency{
		{Name: "redis", Ping: redisClient.Ping},
		{Name: "pubsub", Ping: pubsubClient.Ping},
	})
	requireResource(ctx, logg, "ops server", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithField(runCtx, "env", cfg.App.Env)
	logg.Info(runCtx, "watchdog ready")

	errCh := make(chan error, 3)
	go func() {
		errCh <- subscriber.Run(runCtx)
	}()
	go func() {
		errCh <- watchdogService.Run(runCtx)
	}()
	go func() {
		errCh <- opsServer.Run(runCtx)
	}()

	var runErr error
	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			stop()
			runErr = multierr.Append(runErr, err)
		}
	}
	if runErr != nil {
		logg.Error(runCtx, "watchdog stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "watchdog shut down cleanly")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

func closeResource(ctx context.Context, logg *logger.Logger, resource string, close func() error) {
	if err := close(); err != nil {
		logg.Error(ctx, fmt.Sprintf("failed to close %s", resource), err)
	}
}
