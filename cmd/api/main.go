package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
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

	"github.com/avirag26/scholaro-api/internal/auth"
	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/checkout"
	"github.com/avirag26/scholaro-api/internal/common"
	"github.com/avirag26/scholaro-api/internal/config"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/db"
	"github.com/avirag26/scholaro-api/internal/events"
	"github.com/avirag26/scholaro-api/internal/health"
	"github.com/avirag26/scholaro-api/internal/lock"
	"github.com/avirag26/scholaro-api/internal/obs"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/payment"
	"github.com/avirag26/scholaro-api/internal/ratelimit"
	"github.com/avirag26/scholaro-api/internal/resilience"
	"github.com/avirag26/scholaro-api/internal/user"
)

const metricsNamespace = "scholaro"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Obs.TracingOn,
		ServiceName:   cfg.Obs.ServiceName,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		SamplingRatio: cfg.Obs.SampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	obs.MustRegisterDomainMetrics(metricsNamespace, prometheus.DefaultRegisterer)
	resilience.MustRegisterMetrics(prometheus.DefaultRegisterer)

	if cfg.RunMigrations {
		if err := db.Up(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

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

	locker := lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond, MaxWait: cfg.Checkout.LockTTL}

	catalogService := &catalog.Service{
		Store: catalog.NewStore(pool),
		Cache: catalog.NewCache(redisClient, cfg.Cache.CourseTTL),
		Log:   logger,
	}
	cartStore := cart.NewStore(pool)
	cartService := &cart.Service{Store: cartStore, Courses: catalogService, Log: logger}
	couponService := &coupon.Service{Store: coupon.NewStore(pool), Courses: catalogService, Log: logger}
	userService := &user.Service{Store: user.NewStore(pool), R: redisClient, TTL: cfg.Cache.ProfileTTL, Log: logger}

	breaker := resilience.NewBreaker(resilience.Options{
		MinRequests:    cfg.Breaker.MinSamples,
		FailureRatio:   cfg.Breaker.FailureRate,
		OpenFor:        cfg.Breaker.CoolDown,
		HalfOpenProbes: cfg.Breaker.HalfOpenProbes,
		Target:         "razorpay",
		Logger:         &logger,
	})
	gateway := payment.Guarded{
		Gateway: payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.WebhookSecret),
		Breaker: breaker,
	}

	bus := &events.Bus{
		Store:     events.NewStore(pool),
		Scheduler: events.NewAsynqScheduler(queueClient),
		Log:       logger,
	}

	orderService := &order.Service{
		Store:       order.NewStore(pool),
		Cart:        cartService,
		Coupons:     couponService,
		Enrollments: cartStore,
		Gateway:     gateway,
		Locker:      locker,
		Bus:         bus,
		TaxBps:      cfg.Pricing.TaxRateBps,
		Currency:    cfg.Pricing.Currency,
		LockTTL:     cfg.Checkout.LockTTL,
		Log:         logger,
	}

	checkoutService := &checkout.Service{
		Store:     checkout.RedisStore{R: redisClient, TTL: cfg.Checkout.SessionTTL},
		Cart:      cartService,
		Coupons:   couponService,
		Orders:    orderService,
		Clearer:   cartService,
		Profiles:  userService,
		Locker:    locker,
		LockTTL:   cfg.Checkout.LockTTL,
		TaxBps:    cfg.Pricing.TaxRateBps,
		Redirects: checkout.Redirects{BaseURL: cfg.Checkout.FrontendBaseURL},
		Log:       logger,
	}

	couponLimiter, err := ratelimit.New(redisClient, "ratelimit:coupon", cfg.CouponRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise coupon rate limiter")
	}
	couponLimit := ratelimit.Handler{
		Limiter: couponLimiter,
		Config:  ratelimit.Config{Key: ratelimit.UserOrIP},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}.Middleware

	router := newRouter(routerDeps{
		cfg:    cfg,
		logger: logger,
		auth:   auth.Middleware{Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), AccessCookie: "access_token"},
		idem:   common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		health: health.Handler{
			Probes: map[string]health.Probe{
				"postgres": health.Postgres(pool),
				"redis":    health.Redis(redisClient),
			},
			Timeout: 500 * time.Millisecond,
			Breaker: breaker,
		},
		couponLimit: couponLimit,
		catalog:     &catalog.Handler{Service: catalogService},
		cart:        &cart.Handler{Svc: cartService},
		coupon:      &coupon.Handler{Svc: couponService},
		order: &order.Handler{
			Svc:     orderService,
			Webhook: &order.Webhook{Orders: orderService, Replay: redisClient, ReplayTTL: cfg.IdempotencyTTL},
		},
		checkout: &checkout.Handler{Svc: checkoutService, CouponLimit: couponLimit},
		user:     &user.Handler{Svc: userService},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info().Msg("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited unexpectedly")
		os.Exit(1)
	}
	logger.Info().Msg("server shutdown complete")
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
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.Obs.ServiceName

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
