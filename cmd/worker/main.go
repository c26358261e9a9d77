package main

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/haulpoint/backend-haul/internal/catalog"
	"github.com/haulpoint/backend-haul/internal/common"
	"github.com/haulpoint/backend-haul/internal/config"
	"github.com/haulpoint/backend-haul/internal/db"
	"github.com/haulpoint/backend-haul/internal/notify"
	"github.com/haulpoint/backend-haul/internal/obs"
	"github.com/haulpoint/backend-haul/internal/pricing"
	"github.com/haulpoint/backend-haul/internal/queue"
	"github.com/haulpoint/backend-haul/internal/quote"
)

const sweepInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "haulpoint"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	quoteStore := quote.NewStore(pool)
	enqueuer := queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix}

	catalogSvc, err := catalog.NewService(catalog.NewStore(pool), catalog.NewCache(redisClient, 5*time.Minute))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	pricingSvc, err := pricing.NewService(catalogSvc, nil, pricing.Money(cfg.SpecialHandlingFee))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise pricing service")
	}
	quoteSvc, err := quote.NewService(pricingSvc, quoteStore, enqueuer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}

	followup := notify.Followup{
		Quotes:       quoteStore,
		Sender:       buildEmailSender(logger),
		Logger:       logger,
		BusinessName: cfg.BusinessName,
		BookingURL:   cfg.BookingURL,
		Phone:        cfg.BusinessPhone,
	}

	followupWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueuePrefix,
		Kind:              queue.KindQuoteFollowup,
		Concurrency:       cfg.WorkerConcurrency,
		VisibilityTimeout: 2 * time.Minute,
		RetryBase:         5 * time.Second,
		Handler:           followup.Handle,
	}

	go runSweeper(ctx, quoteSvc, logger)

	logger.Info().Msg("worker starting")
	if err := followupWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

// runSweeper periodically re-enqueues follow-up stages for quotes that are
// still pending. The queue's dedup key makes overlapping sweeps harmless.
func runSweeper(ctx context.Context, svc *quote.Service, logger zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	if err := svc.SweepFollowups(ctx); err != nil {
		logger.Error().Err(err).Msg("follow-up sweep failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.SweepFollowups(ctx); err != nil {
				logger.Error().Err(err).Msg("follow-up sweep failed")
			}
		}
	}
}

// buildEmailSender wires SMTP delivery when SMTP_ADDR is set; otherwise
// messages are dropped so local runs need no mail server.
func buildEmailSender(logger zerolog.Logger) common.EmailSender {
	addr := envOrDefault("SMTP_ADDR", "")
	if addr == "" {
		logger.Warn().Msg("SMTP_ADDR not set, follow-up emails disabled")
		return common.NopEmailSender{}
	}
	return smtpSender{
		addr: addr,
		from: envOrDefault("SMTP_FROM", "quotes@haulpoint.example"),
		user: envOrDefault("SMTP_USERNAME", ""),
		pass: envOrDefault("SMTP_PASSWORD", ""),
	}
}

type smtpSender struct {
	addr string
	from string
	user string
	pass string
}

func (s smtpSender) Send(to, subject, html string) error {
	var auth smtp.Auth
	if s.user != "" {
		host := s.addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.user, s.pass, host)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", s.from, to, subject, html)
	return smtp.SendMail(s.addr, auth, s.from, []string{to}, []byte(msg))
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "haulpoint-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
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
