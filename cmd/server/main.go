package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/swipe-guard/internal/app"
	"github.com/oggyb/swipe-guard/internal/cache"
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/jobs"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/server"
	"github.com/oggyb/swipe-guard/internal/service/swipe"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	abuse, err := config.NewAbuseStore(cfg.Abuse.File)
	if err != nil {
		return fmt.Errorf("load abuse settings: %w", err)
	}

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisCache.Close()

	appCtx := app.New(cfg, database, redisCache, abuse, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, time.Now(), log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	registrars := []server.Registrar{
		swipe.NewRegistrar(appCtx),
	}

	recalc := jobs.NewRecalculator(appCtx.Trust, abuse, log)
	dispatcher := jobs.NewOutboxDispatcher(
		appCtx.Ledger.Notifications,
		appCtx.Notifier,
		appCtx.RetryPolicy(),
		cfg.Notify.DispatchInterval,
		cfg.Notify.StaleAfter,
		log,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.StartGRPCServer(gctx, cfg, log, registrars...) })
	g.Go(func() error { return recalc.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, abuse, log) })
	return g.Wait()
}

// reloadOnHangup re-reads the abuse settings file on SIGHUP.
func reloadOnHangup(ctx context.Context, abuse *config.AbuseStore, log *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if _, err := abuse.Reload(); err != nil {
				log.Error("abuse settings reload failed, keeping previous", "err", err)
				continue
			}
			log.Info("abuse settings reloaded")
		}
	}
}
