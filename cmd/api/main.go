package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-wenjoy/internal/auth"
	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/config"
	"github.com/noah-isme/toko-wenjoy/internal/events"
	"github.com/noah-isme/toko-wenjoy/internal/health"
	"github.com/noah-isme/toko-wenjoy/internal/lock"
	"github.com/noah-isme/toko-wenjoy/internal/obs"
	"github.com/noah-isme/toko-wenjoy/internal/order"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
	"github.com/noah-isme/toko-wenjoy/internal/queue"
	"github.com/noah-isme/toko-wenjoy/internal/ratelimit"
	"github.com/noah-isme/toko-wenjoy/internal/security"
	"github.com/noah-isme/toko-wenjoy/internal/store"
)

// appStore is what the API needs from either store implementation.
type appStore interface {
	payment.Store
	events.EventStore
	order.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "toko-wenjoy-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,

			Acquirer:            cfg.WenjoyAcquirerID,
			AcquirerEnvironment: cfg.Acquirer().Environment(),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var (
		st     appStore
		pinger health.Pinger
	)
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := store.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
		}
		pool := mustInitDatabase(ctx, cfg, logger)
		defer pool.Close()
		pg := store.NewPostgres(pool)
		st, pinger = pg, pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory store")
		st = store.NewMemory()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse task queue redis url")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() { _ = taskClient.Close() }()

	bus := &events.Bus{
		Store: st,
		Notifiers: []events.Notifier{
			queue.FulfillmentNotifier{Client: taskClient, Queue: cfg.QueueName, MaxRetry: cfg.QueueMaxRetry},
		},
	}

	acquirer := cfg.Acquirer()
	logger.Info().Object("acquirer", acquirer).Msg("wenjoy acquirer configured")

	mailer := common.NopEmailSender{}
	validate := validator.New(validator.WithRequiredStructEnabled())

	checkoutSvc := &payment.Service{
		Store:    st,
		Acquirer: acquirer,
		Locker:   lock.Locker{R: redisClient, Prefix: "lock:", MaxWait: cfg.CheckoutLockTTL},
		LockTTL:  cfg.CheckoutLockTTL,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}
	resolver := &payment.Resolver{
		Store:     st,
		Acquirers: map[string]payment.Acquirer{acquirer.ID: acquirer},
		Orders:    &order.Service{Mailer: mailer, Logger: logger.With().Str("component", "order").Logger()},
		Events:    bus,
		Logger:    logger.With().Str("component", "callback").Logger(),
	}
	paymentHandler := &payment.Handler{Svc: checkoutSvc, Store: st, Validate: validate}
	orderHandler := &order.Handler{Repo: st, Validate: validate}
	webhook := payment.Webhook{Resolver: resolver, Replay: redisClient, ReplayTTL: cfg.WenjoyReplayTTL}
	authMiddleware := auth.Middleware{Tokens: auth.Tokens{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	}}

	limiterStore, err := ratelimit.NewRedisStore(redisClient, "ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	checkoutLimiter, err := ratelimit.NewUlule(cfg.CheckoutRateLimit, limiterStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limit")
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: checkoutLimiter,
		Key:     ratelimit.ClientIP,
		Prefix:  "checkout:",
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, cfg.Obs.MetricsBuckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)

	if httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{Checker: health.Probes{DB: pinger, Redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	// The gateway posts browser returns and server confirmations here; the
	// purchase signature is its only credential.
	r.With(security.BodyLimit{Max: cfg.CallbackBodyLimit}.Middleware).
		MethodFunc(http.MethodPost, payment.CallbackPath, webhook.Handle)
	r.Get(payment.CallbackPath, webhook.Handle)
	r.Get(payment.ProcessPath, func(w http.ResponseWriter, _ *http.Request) {
		common.JSON(w, http.StatusOK, map[string]string{"status": "processing"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins(cfg),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         300,
		}))
		api.Use(authMiddleware.RequireAuth)
		api.With(checkoutLimit.Middleware).Post("/payments/wenjoy/checkout", paymentHandler.Checkout)
		api.Get("/payments/wenjoy/transactions/{reference}", paymentHandler.Transaction)
		api.Put("/orders/{orderId}", orderHandler.Upsert)
		api.Get("/orders/{orderId}", orderHandler.Get)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-wenjoy-api"

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
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.EnablePrometheus {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
