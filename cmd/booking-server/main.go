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

	"github.com/redis/go-redis/v9"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/config"
	httptransport "github.com/example/room-booking/internal/http"
	"github.com/example/room-booking/internal/lock"
	"github.com/example/room-booking/internal/logging"
	"github.com/example/room-booking/internal/notify"
	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/persistence/memory"
	"github.com/example/room-booking/internal/persistence/postgres"
	"github.com/example/room-booking/internal/persistence/sqlite"
	"github.com/example/room-booking/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.New(stdout, cfg.Log.Level, cfg.Log.Format)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, err := newPublisher(cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			logger.Error("failed to close publisher", "error", cerr)
		}
	}()

	handler, err := newHandler(store, locker, publisher, cfg.Booking.ReservationPolicy, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening",
		"addr", server.Addr,
		"storage", cfg.Storage.Driver,
		"lock", cfg.Lock.Backend,
		"reservation_policy", cfg.Booking.ReservationPolicy,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		store, err := sqlite.OpenPath(cfg.SQLiteDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (lock.Locker, func(), error) {
	if cfg.Lock.Backend != "redis" {
		return lock.NewLocal(cfg.Lock.Timeout), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	locker := lock.NewRedis(client, lock.RedisConfig{Timeout: cfg.Lock.Timeout, TTL: cfg.Lock.TTL}, logger)
	return locker, func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}, nil
}

func newPublisher(cfg config.KafkaConfig) (notify.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return notify.Noop{}, nil
	}
	return notify.NewKafka(notify.KafkaConfig{Brokers: cfg.Brokers, Topic: cfg.Topic})
}

func newHandler(store persistence.Store, locker lock.Locker, publisher notify.Publisher, policyName string, logger *slog.Logger) (http.Handler, error) {
	policy, err := application.ParseReservationPolicy(policyName)
	if err != nil {
		return nil, err
	}

	idGenerator := application.NewUUIDGenerator()
	now := time.Now

	bookings := application.NewBookingService(store, locker,
		application.WithReservationPolicy(policy),
		application.WithPublisher(publisher),
		application.WithIDGenerator(idGenerator),
		application.WithClock(now),
		application.WithLogger(logger),
	)
	rooms := application.NewRoomServiceWithLogger(store, locker, idGenerator, now, logger)
	resources := application.NewResourceServiceWithLogger(store, locker, idGenerator, now, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:  httptransport.NewBookingHandler(bookings, logger),
		Rooms:     httptransport.NewRoomHandler(rooms, logger),
		Resources: httptransport.NewResourceHandler(resources, logger),
		Health:    store.Ping,
		Logger:    logger,
	}), nil
}
