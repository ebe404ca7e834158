package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/config"
	"github.com/iliyamo/surplus-market/internal/database"
	"github.com/iliyamo/surplus-market/internal/handler"
	"github.com/iliyamo/surplus-market/internal/middleware"
	"github.com/iliyamo/surplus-market/internal/queue"
	"github.com/iliyamo/surplus-market/internal/repository"
	"github.com/iliyamo/surplus-market/internal/repository/memory"
	"github.com/iliyamo/surplus-market/internal/router"
	"github.com/iliyamo/surplus-market/internal/service"
	"github.com/iliyamo/surplus-market/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Init(logger.Options{Service: "surplus-market"})
		l := logger.Get()
		l.Fatal().Err(err).Msg("load config")
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "surplus-market"})

	store, closeStore, err := openStore(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	rbac := service.NewRBACManager(store, log)
	if err := rbac.SeedDefaults(ctx); err != nil {
		log.Fatal().Err(err).Msg("seed roles")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn().Str("addr", cfg.Redis.Address()).Msg("redis unavailable; rate limiting and caching disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	var events service.EventPublisher = queue.NopPublisher{}
	if cfg.AMQP.URL != "" {
		events = queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		if cfg.AMQP.Consume {
			consumer := &queue.AuditConsumer{URL: cfg.AMQP.URL, Queue: cfg.AMQP.Queue, LogPath: cfg.AMQP.AuditLogPath, Log: log}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("audit consumer stopped")
				}
			}()
		}
	}

	gate := authz.NewGate(rbac, log)
	accounts := service.NewAccountService(store, cfg.BcryptCost, log)
	sessions := service.NewSessionService(store, cfg.JWTSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays, log)
	bundles := service.NewBundleRegistry(store, log)
	reservations := service.NewReservationEngine(store, events, log)
	streaks := service.NewStreakService(store, log)

	var purger handler.CachePurger
	if p := middleware.NewCachePurger(cfg.Cache, rdb, log); p != nil {
		purger = p
	}

	e := router.New(log, cfg.JWTSecret, middleware.NewTokenBucket(cfg.RateLimit, rdb, log))
	router.RegisterRoutes(e, handler.NewHealthHandler(store, rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(accounts, sessions, rbac), cfg.JWTSecret)
	router.RegisterBundles(e, handler.NewBundleHandler(bundles, gate, purger), cfg.JWTSecret, middleware.NewRedisCache(cfg.Cache, rdb, log))
	router.RegisterReservations(e, handler.NewReservationHandler(reservations, gate, purger), cfg.JWTSecret)
	router.RegisterStreak(e, handler.NewStreakHandler(streaks), gate, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.DB.Driver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.DBConfig, log zerolog.Logger) (repository.Store, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}
	db, err := database.Open(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repository.NewMySQLStore(db), func() { _ = db.Close() }, nil
}
