package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stake-plus/devhub-cache/src/api/webserver"
	"github.com/stake-plus/devhub-cache/src/config"
	"github.com/stake-plus/devhub-cache/src/core"
	"github.com/stake-plus/devhub-cache/src/indexer"
	"github.com/stake-plus/devhub-cache/src/store"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "devhub-cache",
		Short:         "Read-through cache of devhub proposals and RFPs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment overrides it)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cursorCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the API, syncing on demand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := openApp(ctx, true, true)
			if err != nil {
				return err
			}
			defer a.Close()

			engine := webserver.New(ctx, a.cfg, webserver.Deps{Store: a.store, Syncer: a.syncer, Log: a.log})
			manager := core.NewManager(a.log, webserver.NewServer(":"+a.cfg.Port, engine, a.log))
			if a.cfg.Sync.Interval > 0 {
				if err := manager.Add(indexer.NewRefresher(a.syncer, a.cfg.Sync.Interval, a.log)); err != nil {
					return err
				}
			}
			return manager.Run(ctx, 10*time.Second)
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass now, ignoring the freshness window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), true, true)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.syncer.SyncOnce(cmd.Context())
			if err != nil {
				return err
			}
			if res.Skipped {
				a.log.Info("another replica is syncing, nothing done")
				return nil
			}
			return printJSON(res)
		},
	}
}

func migrateCmd() *cobra.Command {
	var recreate bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), false, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if recreate {
				return a.store.Recreate(a.log)
			}
			if err := a.store.MigrateOrRecreate(a.log); err != nil {
				return err
			}
			a.log.Info("schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop cache tables and rebuild them (settings are kept)")
	return cmd
}

func cursorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or override the sync watermark",
	}

	run := func(op func(ctx context.Context, t *indexer.Tracker, args []string) (store.SyncCursor, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true, false)
			if err != nil {
				return err
			}
			defer a.Close()
			cur, err := op(cmd.Context(), indexer.NewTracker(a.store, a.log), args)
			if err != nil {
				return err
			}
			return printJSON(cur)
		}
	}
	parseInt := func(s string) (int64, error) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", s)
		}
		return n, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored watermark",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, t *indexer.Tracker, _ []string) (store.SyncCursor, error) {
			return t.Load(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Zero the watermark so the next pass replays from genesis",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, t *indexer.Tracker, _ []string) (store.SyncCursor, error) {
			return t.Reset(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-cursor <cursor>",
		Short: "Force the feed pagination cursor",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, t *indexer.Tracker, args []string) (store.SyncCursor, error) {
			return t.SetCursor(ctx, args[0])
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-block <height>",
		Short: "Force the block height used for cold starts",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, t *indexer.Tracker, args []string) (store.SyncCursor, error) {
			h, err := parseInt(args[0])
			if err != nil {
				return store.SyncCursor{}, err
			}
			return t.SetBlockHeight(ctx, h)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-timestamp <nanoseconds>",
		Short: "Force the last processed timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, t *indexer.Tracker, args []string) (store.SyncCursor, error) {
			ts, err := parseInt(args[0])
			if err != nil {
				return store.SyncCursor{}, err
			}
			return t.SetTimestamp(ctx, ts)
		}),
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if !cfg.AdminEnabled() {
				return errors.New("JWT_SECRET is not set")
			}
			tok, err := webserver.IssueAdminToken([]byte(cfg.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject recorded in admin audit logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
