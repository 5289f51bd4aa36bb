package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/api"
	"github.com/heinthant2k4/sports-arena-booking/internal/broker"
	"github.com/heinthant2k4/sports-arena-booking/internal/config"
	"github.com/heinthant2k4/sports-arena-booking/internal/database"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/events"
	"github.com/heinthant2k4/sports-arena-booking/internal/interval"
	"github.com/heinthant2k4/sports-arena-booking/internal/metrics"
	"github.com/heinthant2k4/sports-arena-booking/internal/repository"
	"github.com/heinthant2k4/sports-arena-booking/internal/service"
	"github.com/heinthant2k4/sports-arena-booking/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthProbeInterval = 15 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs with the outbox relay and backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, closer, err := loadConfigAndLogger("arena-main")
	if err != nil {
		return err
	}
	defer closeQuietly(closer)

	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create exports directory")
		return err
	}

	db, facilities, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	sink, closeSink, err := initSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	outbox := worker.NewOutboxWorker(db, sink, redisClient, cfg.Outbox, logger)
	go outbox.Start(ctx)

	eventBus := events.NewEventBus()
	subscribeReservationEvents(eventBus, logger)

	locker := initLocker(cfg, redisClient, logger)
	index := interval.NewIndex()
	policy := cfg.Booking.Policy()

	reservations := service.NewReservationService(db, facilities, locker, index, eventBus, outbox, policy, logger)
	lifecycle := service.NewLifecycleService(db, locker, index, eventBus, outbox, policy, logger)

	if err := reservations.LoadIndex(ctx); err != nil {
		logger.Error().Err(err).Msg("load reservation index")
		return err
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go watchStoreHealth(ctx, grpcServer, db.PingContext, logger)
	}

	httpServer := api.NewHTTPServer(&cfg.API, api.Dependencies{
		Reservations:   reservations,
		Lifecycle:      lifecycle,
		Facilities:     facilities,
		Ping:           db.PingContext,
		RequestTimeout: cfg.Booking.RequestTimeout,
	}, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

// watchStoreHealth mirrors database reachability into the gRPC health status.
func watchStoreHealth(ctx context.Context, srv *api.GRPCServer, ping func(context.Context) error, logger *zerolog.Logger) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := ping(probeCtx)
			cancel()

			if ok := err == nil; ok != serving {
				serving = ok
				srv.SetServing(ok)
				logger.Warn().Err(err).Bool("serving", ok).Msg("store health changed")
			}
		}
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		// The failover locker probes again later; keep the client.
		logger.Warn().Err(err).Msg("redis unavailable at startup")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

// initLocker prefers a Redis lock shared across instances and falls back to
// the in-process locker when Redis is absent or failing.
func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.Locker {
	memory := repository.NewMemoryLocker()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisLocker(redisClient, cfg.Booking.LockTTL, cfg.Booking.LockWait, logger)
	return repository.NewFailoverLocker(primary, memory, logger)
}

func initSink(cfg *config.Config, logger *zerolog.Logger) (worker.Sink, func(), error) {
	if !cfg.Kafka.Enabled {
		logger.Info().Msg("kafka disabled, outbox events are logged only")
		return worker.NewLogSink(logger), func() {}, nil
	}

	producer, err := broker.NewProducer(cfg.Kafka, logger)
	if err != nil {
		logger.Error().Err(err).Msg("create kafka producer")
		return nil, nil, err
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			logger.Warn().Err(err).Msg("close kafka producer")
		}
	}, nil
}

func subscribeReservationEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.SubscribeAll(func(ev *events.Event) error {
		logger.Debug().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("reservation event")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("http", cfg.API.HTTP.Enabled).
		Int("http_port", cfg.API.HTTP.Port).
		Bool("grpc", grpcServer != nil).
		Msg("arena engine started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("arena engine stopped")
	return nil
}
