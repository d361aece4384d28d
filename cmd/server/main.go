package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fitportal/internal/api"
	"fitportal/internal/auth"
	"fitportal/internal/captcha"
	"fitportal/internal/config"
	"fitportal/internal/db"
	"fitportal/internal/events"
	"fitportal/internal/logger"
	"fitportal/internal/notify"
	"fitportal/internal/rate"
	"fitportal/internal/service"
	"fitportal/internal/store"
	"fitportal/internal/version"
)

func main() {
	boot := logger.New("info", "")
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		boot.Fatal().Err(err).Msg("load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.Env)
	info := version.Current()
	log.Info().Str("version", info.Version).Str("commit", info.Commit).Str("db_driver", cfg.DBDriver).Msg("starting")

	target := cfg.DatabaseURL
	if cfg.DBDriver == db.DriverSQLite {
		target = cfg.DBPath
	}
	sqdb, err := db.Open(cfg.DBDriver, target, db.PoolConfig{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer sqdb.Close()
	if err := db.ApplyMigrations(sqdb, db.MigrationsDir(cfg.MigrationsDir, cfg.DBDriver)); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	st := store.New(sqdb, cfg.DBDriver)
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin hash")
		}
		if err := st.EnsureAdmin(context.Background(), cfg.BootstrapAdminEmail, hash); err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin create")
		}
	}

	provider := notify.NewProvider(cfg, log)
	dispatcher := notify.NewDispatcher(provider, notify.DispatcherConfig{
		SiteName:       cfg.SiteName,
		From:           cfg.EmailFrom,
		OpsNotifyEmail: cfg.OpsNotifyEmail,
		SendTimeout:    cfg.EmailSendTimeout(),
	}, log)
	queue := notify.NewQueue(provider, notify.QueueOptions{
		MaxAttempts: cfg.QueueMaxAttempts,
		ItemDelay:   cfg.QueueItemDelay(),
		SendTimeout: cfg.EmailSendTimeout(),
		Logger:      log.With().Str("component", "delivery_queue").Logger(),
	})

	limiter := newLimiter(cfg, log)
	publisher := newPublisher(cfg, log)

	svc := service.New(cfg, service.Deps{
		Store:      st,
		Tokens:     auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL()),
		Dispatcher: dispatcher,
		Queue:      queue,
		Events:     publisher,
		Logger:     log,
	})
	r := api.NewRouter(cfg, svc, api.Deps{
		Logger:  log,
		Limiter: limiter,
		Captcha: captcha.NewVerifier(cfg),
	})

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("email_provider", provider.Name()).Msg("listening")
		errCh <- hsrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := hsrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		cancel()
	}

	if snap := queue.Status(); len(snap.Pending) > 0 {
		log.Warn().Int("pending", len(snap.Pending)).Msg("dropping undelivered notifications on shutdown")
	}
	queue.Close()
	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("close event publisher")
	}
}

func newLimiter(cfg config.Config, log zerolog.Logger) rate.Allower {
	if cfg.RedisAddr == "" {
		return rate.NewMemoryLimiter()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := rate.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using in-memory rate limits")
		return rate.NewMemoryLimiter()
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis rate limiter")
	return rate.NewRedisLimiter(rdb, "")
}

func newPublisher(cfg config.Config, log zerolog.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NoopPublisher{}
	}
	log.Info().Str("queue", cfg.AMQPQueue).Msg("publishing submission events")
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue, log.With().Str("component", "events").Logger())
}
