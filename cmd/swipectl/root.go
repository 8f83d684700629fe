package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oggyb/swipe-guard/internal/app"
	"github.com/oggyb/swipe-guard/internal/cache"
	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/service/swipe"
)

type rootOptions struct {
	useRedis bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "swipectl",
		Short:         "swipectl - operate the swipe-guard ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&opts.useRedis, "redis", false, "Connect to Redis for notifications and the report cache")

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(recalcCmd(opts))
	rootCmd.AddCommand(dispatchCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))
	rootCmd.AddCommand(analyzeCmd(opts))
	rootCmd.AddCommand(unmatchCmd(opts))
	rootCmd.AddCommand(matchesCmd(opts))
	rootCmd.AddCommand(flaggedCmd(opts))
	rootCmd.AddCommand(swipeCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

// openApp connects to the configured database, and to Redis when asked, and
// returns the wired application context with a cleanup func.
func openApp(ctx context.Context, opts *rootOptions) (*app.AppContext, func(), error) {
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	abuse, err := config.NewAbuseStore(cfg.Abuse.File)
	if err != nil {
		return nil, nil, fmt.Errorf("load abuse settings: %w", err)
	}
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init db: %w", err)
	}

	var rc *cache.RedisCache
	if opts.useRedis {
		rc = cache.NewRedisCache(cfg)
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	cleanup := func() {
		if rc != nil {
			_ = rc.Close()
		}
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app.New(cfg, database, rc, abuse, log), cleanup, nil
}

func withProcessor(cmd *cobra.Command, opts *rootOptions, fn func(*swipe.Processor) (any, error)) error {
	appCtx, cleanup, err := openApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := fn(swipe.NewProcessorFromApp(appCtx))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func parseID(name, v string) (uint64, error) {
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid uint64: %q", name, v)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
