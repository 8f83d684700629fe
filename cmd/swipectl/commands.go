package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/oggyb/swipe-guard/internal/config"
	"github.com/oggyb/swipe-guard/internal/db"
	"github.com/oggyb/swipe-guard/internal/jobs"
	"github.com/oggyb/swipe-guard/internal/logger"
	"github.com/oggyb/swipe-guard/internal/service/swipe"
	"github.com/oggyb/swipe-guard/internal/utils/dbctx"
)

func seedCmd() *cobra.Command {
	var minimal bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Reset the database and load demo swipe history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			logger.InitFromConfig(cfg)

			database, err := db.NewDB(cfg)
			if err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			if sqlDB, err := database.DB(); err == nil {
				defer sqlDB.Close()
			}
			if minimal {
				err = db.SeedMinimalTestData(database, time.Now())
			} else {
				err = db.SeedTestData(database, time.Now(), logger.L())
			}
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Seeding completed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&minimal, "minimal", false, "Load the small deterministic dataset")
	return cmd
}

func recalcCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate trust scores of recently active users once",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, cleanup, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := jobs.NewRecalculator(appCtx.Trust, appCtx.Abuse, appCtx.Logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"recalculated": n})
		},
	}
}

func dispatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver due match notifications from the outbox once",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, cleanup, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()

			d := jobs.NewOutboxDispatcher(
				appCtx.Ledger.Notifications,
				appCtx.Notifier,
				appCtx.RetryPolicy(),
				appCtx.Config.Notify.DispatchInterval,
				appCtx.Config.Notify.StaleAfter,
				appCtx.Logger,
			)
			n, err := d.DispatchOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"delivered": n})
		},
	}
}

func reportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report [user]",
		Short: "Show the behavior report of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			return withProcessor(cmd, opts, func(p *swipe.Processor) (any, error) {
				return p.GetBehaviorReport(cmd.Context(), userID)
			})
		},
	}
}

func analyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [user]",
		Short: "Run the bot heuristics over a user's recent swipes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			return withProcessor(cmd, opts, func(p *swipe.Processor) (any, error) {
				return p.AnalyzeBot(cmd.Context(), userID)
			})
		},
	}
}

func unmatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unmatch [user] [target]",
		Short: "End the active match between two users",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			targetID, err := parseID("target", args[1])
			if err != nil {
				return err
			}
			return withProcessor(cmd, opts, func(p *swipe.Processor) (any, error) {
				return p.Unmatch(cmd.Context(), userID, targetID)
			})
		},
	}
}

func matchesCmd(opts *rootOptions) *cobra.Command {
	var (
		limit int
		token string
	)
	cmd := &cobra.Command{
		Use:   "matches [user]",
		Short: "List a user's active matches, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			var page *string
			if token != "" {
				page = &token
			}
			return withProcessor(cmd, opts, func(p *swipe.Processor) (any, error) {
				matches, next, err := p.ListMatches(cmd.Context(), userID, page, limit)
				if err != nil {
					return nil, err
				}
				return map[string]any{"matches": matches, "next_pagination_token": next}, nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Page size")
	cmd.Flags().StringVar(&token, "token", "", "Pagination token from a previous page")
	return cmd
}

func flaggedCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List flagged users, lowest trust first",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, cleanup, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := appCtx.Ledger.Stats.ListFlagged(dbctx.Background(cmd.Context()), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	return cmd
}

func swipeCmd() *cobra.Command {
	var (
		addr    string
		like    bool
		key     string
		device  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "swipe [user] [target]",
		Short: "Record a swipe through a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := swipe.NewClient(conn).RecordSwipe(ctx, &swipe.RecordSwipeRequest{
				UserID:         args[0],
				TargetUserID:   args[1],
				IsLike:         like,
				IdempotencyKey: key,
				DeviceInfo:     device,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:50051", "Server address")
	cmd.Flags().BoolVar(&like, "like", false, "Like instead of pass")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	cmd.Flags().StringVar(&device, "device", "swipectl", "Device info")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Call timeout")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect abuse settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate an abuse settings file and print the effective values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.New().Abuse.File
			if len(args) == 1 {
				path = args[0]
			}
			s, err := config.LoadAbuse(path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(s)
		},
	})
	return cmd
}
