package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/haulpoint/backend-haul/internal/catalog"
	"github.com/haulpoint/backend-haul/internal/config"
	"github.com/haulpoint/backend-haul/internal/credit"
	"github.com/haulpoint/backend-haul/internal/db"
	"github.com/haulpoint/backend-haul/internal/health"
	"github.com/haulpoint/backend-haul/internal/obs"
	"github.com/haulpoint/backend-haul/internal/pricing"
	"github.com/haulpoint/backend-haul/internal/queue"
	"github.com/haulpoint/backend-haul/internal/quote"
	"github.com/haulpoint/backend-haul/internal/ratelimit"
	"github.com/haulpoint/backend-haul/internal/referral"
	"github.com/haulpoint/backend-haul/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "haulpoint")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	if metricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "haulpoint-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "haulpoint-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	catalogSvc, err := catalog.NewService(catalog.NewStore(pool), catalog.NewCache(redisClient, 5*time.Minute))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.Handler{Svc: catalogSvc}

	pricingSvc, err := pricing.NewService(catalogSvc, tiersFromConfig(cfg), pricing.Money(cfg.SpecialHandlingFee))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise pricing service")
	}
	pricingHandler := pricing.Handler{Svc: pricingSvc}

	enqueuer := queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix}
	quoteSvc, err := quote.NewService(pricingSvc, quote.NewStore(pool), enqueuer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}
	quoteHandler := quote.Handler{Svc: quoteSvc}

	referralSvc, err := referral.NewService(referral.NewStore(pool), cfg.ReferralCreditAmount, int32(cfg.ReferralMaxUses), cfg.ReferralCodeTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise referral service")
	}
	referralHandler := referral.Handler{Svc: referralSvc}

	creditSvc, err := credit.NewService(credit.NewStore(pool))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise credit service")
	}
	creditHandler := credit.Handler{Svc: creditSvc}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	limiter := ratelimit.Limiter{Client: redisClient, Prefix: cfg.QueuePrefix + ":rl:"}
	submitLimit := ratelimit.Middleware(limiter, ratelimit.Config{
		Key:    ratelimit.ByClientIP("quotes"),
		Window: time.Minute,
		Max:    10,
	}, func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") })
	redeemLimit := ratelimit.Middleware(limiter, ratelimit.Config{
		Key:    ratelimit.ByClientIP("redeem"),
		Window: time.Minute,
		Max:    5,
	}, func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") })

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Checker: readinessChecker{db: pool, redis: redisClient}}
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/items", catalogHandler.Items)

		v.Post("/quotes/estimate", pricingHandler.Estimate)
		v.With(submitLimit).Post("/quotes", quoteHandler.Submit)

		v.Route("/referrals", func(rr chi.Router) {
			rr.Get("/codes", referralHandler.Codes)
			rr.Post("/codes", referralHandler.Issue)
			rr.With(redeemLimit).Post("/redeem", referralHandler.Redeem)
		})

		v.Get("/credits", creditHandler.Available)
		v.Post("/credits/apply", creditHandler.Apply)

		v.Route("/admin", func(admin chi.Router) {
			admin.Get("/quotes", quoteHandler.AdminList)
			admin.Patch("/quotes/{id}/status", quoteHandler.AdminUpdateStatus)
			admin.Patch("/referrals/{code}/deactivate", referralHandler.Deactivate)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-serveCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		logger.Info().Msg("server stopped")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}
}

// tiersFromConfig overlays configured floors on the default volume bands.
func tiersFromConfig(cfg *config.Config) []pricing.Tier {
	if len(cfg.TierFloors) != len(pricing.DefaultTiers) {
		return nil
	}
	tiers := make([]pricing.Tier, len(pricing.DefaultTiers))
	copy(tiers, pricing.DefaultTiers)
	for i := range tiers {
		tiers[i].Floor = pricing.Money(cfg.TierFloors[i])
	}
	return tiers
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
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

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
