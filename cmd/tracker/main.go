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
	"github.com/fedeegea/baggage-backend/internal/events"
	"github.com/fedeegea/baggage-backend/internal/ops"
	"github.com/fedeegea/baggage-backend/internal/tracker"
	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/fedeegea/baggage-backend/pkg/db"
	"github.com/fedeegea/baggage-backend/pkg/logger"
	"github.com/fedeegea/baggage-backend/pkg/metrics"
	"github.com/fedeegea/baggage-backend/pkg/migrate"
	"github.com/fedeegea/baggage-backend/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "tracker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "tracker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer closeResource(ctx, logg, "database", dbClient.Close)

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "migrations", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	trackerMetrics := metrics.NewTrackerMetrics(registry)
	relayMetrics := metrics.NewRelayMetrics(registry)

	opsDeps := []ops.Dependency{{Name: "database", Ping: dbClient.Ping}}

	// Publishing is optional in dev: without a GCP project events stay local.
	var publisher events.Publisher
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		defer closeResource(ctx, logg, "pubsub", pubsubClient.Close)

		publisher, err = bus.NewPublisher(bus.PublisherParams{
			Publisher: pubsubClient.EventsPublisher(),
			Timeout:   cfg.PubSub.PublishTimeout,
			Logger:    logg,
			Metrics:   relayMetrics,
		})
		requireResource(ctx, logg, "bus publisher", err)
	} else {
		logg.Warn(ctx, "no gcp project configured, events will not be published")
	}

	repo := events.NewRepository(dbClient.DB())
	eventService, err := events.NewService(repo, publisher, logg)
	requireResource(ctx, logg, "event service", err)

	trackerService, err := tracker.NewService(tracker.ServiceParams{
		Config:   cfg.Simulator,
		Recorder: eventService,
		Lister:   repo,
		Logger:   logg,
		Metrics:  trackerMetrics,
	})
	requireResource(ctx, logg, "tracker service", err)

	opsServer, err := ops.NewServer(cfg.Ops, logg, registry, opsDeps)
	requireResource(ctx, logg, "ops server", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithField(runCtx, "env", cfg.App.Env)

	recovered, err := trackerService.Recover(runCtx)
	requireResource(runCtx, logg, "recovery", err)
	logg.Info(logg.WithField(runCtx, "recovered", recovered), "tracker ready")

	errCh := make(chan error, 2)
	go func() {
		errCh <- trackerService.Run(runCtx)
	}()
	go func() {
		errCh <- opsServer.Run(runCtx)
	}()

	var runErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			stop()
			runErr = multierr.Append(runErr, err)
		}
	}
	if runErr != nil {
		logg.Error(runCtx, "tracker stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "tracker shut down cleanly")
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
