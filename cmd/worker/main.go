package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/config"
	"github.com/avirag26/scholaro-api/internal/events"
	"github.com/avirag26/scholaro-api/internal/obs"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/tasks"
	"github.com/avirag26/scholaro-api/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tasks.MustRegisterMetrics(prometheus.DefaultRegisterer)

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	queueOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse queue redis url")
	}
	queueClient := asynq.NewClient(queueOpt)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close queue client")
		}
	}()

	bus := &events.Bus{
		Store:     events.NewStore(pool),
		Scheduler: events.NewAsynqScheduler(queueClient),
		Log:       logger,
	}
	catalogService := &catalog.Service{Store: catalog.NewStore(pool), Log: logger}
	handlers := &tasks.Handlers{
		Relay:      bus,
		Orders:     &order.Service{Store: order.NewStore(pool), Bus: bus, Log: logger},
		Cart:       &cart.Service{Store: cart.NewStore(pool), Courses: catalogService, Log: logger},
		Profiles:   &user.Service{Store: user.NewStore(pool), R: redisClient, TTL: cfg.Cache.ProfileTTL, Log: logger},
		RelayBatch: cfg.Worker.RelayBatch,
		PendingTTL: cfg.Worker.PendingOrderTTL,
		Log:        logger,
	}

	server := asynq.NewServer(queueOpt, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues: map[string]int{
			events.QueueEvents:     6,
			tasks.QueueMaintenance: 2,
		},
		RetryDelayFunc:  tasks.RetryDelay(cfg.Worker.RetryBase),
		ShutdownTimeout: 15 * time.Second,
		Logger:          queueLogger{log: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", t.Type()).Msg("task failed")
		}),
	})

	scheduler := asynq.NewScheduler(queueOpt, &asynq.SchedulerOpts{Logger: queueLogger{log: logger}})
	if err := tasks.RegisterPeriodic(scheduler, cfg.Worker.RelayEvery, cfg.Worker.ExpireEvery); err != nil {
		logger.Fatal().Err(err).Msg("register periodic tasks")
	}

	logger.Info().Msg("worker starting")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(handlers.Mux()); err != nil {
			return err
		}
		<-gctx.Done()
		server.Shutdown()
		return nil
	})
	g.Go(func() error {
		if err := scheduler.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		scheduler.Shutdown()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("worker shutdown complete")
}

// queueLogger routes asynq's internal logging through zerolog.
type queueLogger struct {
	log zerolog.Logger
}

func (l queueLogger) Debug(args ...any) { l.log.Debug().Msg(join(args)) }
func (l queueLogger) Info(args ...any)  { l.log.Info().Msg(join(args)) }
func (l queueLogger) Warn(args ...any)  { l.log.Warn().Msg(join(args)) }
func (l queueLogger) Error(args ...any) { l.log.Error().Msg(join(args)) }
func (l queueLogger) Fatal(args ...any) { l.log.Fatal().Msg(join(args)) }

func join(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if s, ok := a.(string); ok {
			parts = append(parts, s)
			continue
		}
		if err, ok := a.(error); ok {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, " ")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.Obs.ServiceName + "-worker"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}
