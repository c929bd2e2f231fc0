package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chronicle/internal/directory"
	"chronicle/internal/platform/config"
	"chronicle/internal/platform/httpserver"
	"chronicle/internal/platform/logger"
	"chronicle/internal/platform/metrics"
	platformredis "chronicle/internal/platform/redis"
	"chronicle/internal/recorder"
	"chronicle/internal/schema"
	"chronicle/internal/snapshot"
	"chronicle/internal/store/kafka"
	"chronicle/internal/store/memory"
	"chronicle/internal/store/postgres"
	httptransport "chronicle/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Audit pipeline logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	sink, reader, health, cleanup, err := buildSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	cache, redisHealth, closeRedis, err := buildSnapshotCache(cfg, log)
	if err != nil {
		return err
	}
	defer closeRedis()
	if redisHealth != nil {
		health = append(health, redisHealth)
	}

	registry := schema.NewRegistry()

	opts := []recorder.Option{recorder.WithLogger(log), recorder.WithMetrics(m)}
	if cfg.DirectoryURL != "" {
		opts = append(opts, recorder.WithActorDirectory(directory.NewHTTP(cfg.DirectoryURL, nil)))
		log.Info("actor directory", "url", cfg.DirectoryURL)
	}

	rec := recorder.New(registry, sink, cache, recorder.Config{
		CheckActorExists:  cfg.CheckActorExists,
		PropagateFailures: cfg.PropagateFailures,
		SnapshotTTL:       cfg.SnapshotTTL,
	}, opts...)

	handler := httptransport.New(reader, log, health...)
	handler.EnableNotifications(rec, registry)
	srv := httpserver.New(cfg.Addr, handler.Router())

	log.Info("starting chronicle", "addr", cfg.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildSink picks the durable store and optionally tees events into Kafka.
func buildSink(ctx context.Context, cfg config.Config, log *slog.Logger) (recorder.Sink, httptransport.EventReader, []httptransport.HealthChecker, func(), error) {
	var (
		sink    recorder.Sink
		reader  httptransport.EventReader
		health  []httptransport.HealthChecker
		cleanup = func() {}
	)

	if cfg.PostgresURL != "" {
		store, err := postgres.Open(cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		sink, reader = store, store
		health = append(health, store.Health)
		cleanup = func() { _ = store.Close() }
		log.Info("audit sink", "backend", "postgres")
	} else {
		store := memory.New()
		sink, reader = store, store
		log.Info("audit sink", "backend", "memory")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.New(ctx, cfg.Kafka, log)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, err
		}
		prev := cleanup
		cleanup = func() {
			producer.Close()
			prev()
		}
		sink = &teeSink{primary: sink, secondary: producer, logger: log}
		log.Info("audit events mirrored to kafka", "topic", cfg.Kafka.Topic)
	}

	return sink, reader, health, cleanup, nil
}

func buildSnapshotCache(cfg config.Config, log *slog.Logger) (snapshot.Cache, httptransport.HealthChecker, func(), error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	if client == nil {
		log.Info("snapshot cache", "backend", "memory")
		return snapshot.NewMemoryCache(), nil, func() {}, nil
	}
	log.Info("snapshot cache", "backend", "redis")
	return snapshot.NewRedisCache(client.Client, log), client.Health, func() { _ = client.Close() }, nil
}

// teeSink writes to the durable store first, then mirrors to the secondary
// publisher. A mirror failure is logged but never fails the dispatch: the
// durable row is the source of truth and the stream can be replayed from it.
type teeSink struct {
	primary   recorder.Sink
	secondary recorder.Sink
	logger    *slog.Logger
}

func (t *teeSink) Append(ctx context.Context, event recorder.AuditEvent) error {
	if err := t.primary.Append(ctx, event); err != nil {
		return err
	}
	if err := t.secondary.Append(ctx, event); err != nil {
		t.logger.WarnContext(ctx, "audit event mirror failed",
			"event_id", event.ID,
			"error", err,
		)
	}
	return nil
}
