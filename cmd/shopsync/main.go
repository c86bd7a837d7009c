package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/shopsync/internal/engine"
	"github.com/ajitpratap0/shopsync/internal/scheduler"
	"github.com/ajitpratap0/shopsync/pkg/config"
	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		envFiles   []string
	)

	root := &cobra.Command{
		Use:   "shopsync",
		Short: "shopsync - incremental Shopify to warehouse sync",
		Long: `shopsync copies customers, products, orders and inventory from a Shopify
store into a data warehouse. Each resource is fetched incrementally from its
last committed watermark, mapped to warehouse rows and written in batches.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Path to .env files to load (default .env)")

	load := func(validate bool) (*config.Config, error) {
		return loadConfig(configFile, envFiles, validate)
	}

	root.AddCommand(
		newVersionCmd(),
		newRunCmd(load),
		newSyncCmd(load),
		newBackfillCmd(load),
		newStateCmd(load),
		newConfigCmd(load),
	)
	return root
}

type loadFunc func(validate bool) (*config.Config, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shopsync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newRunCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run an initial sync, then sync on a schedule",
		Long: `Run performs one full sync at startup and then syncs every
sync.interval_minutes until interrupted. A failed initial sync exits with an
error; failed scheduled syncs are logged and retried on the next trigger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(true)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runService(ctx, cfg)
		},
	}
}

func runService(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	a.serveMetrics(ctx)

	resources, err := cfg.SyncResources()
	if err != nil {
		return err
	}
	job := func(ctx context.Context) error {
		runCtx, cancel := a.runContext(ctx)
		defer cancel()
		_, err := a.coordinator.RunAll(runCtx, resources)
		return err
	}

	a.log.Info("running initial sync", zap.Strings("resources", cfg.Sync.Resources))
	if err := job(ctx); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	s, err := scheduler.New(cfg.Interval(), job, a.log)
	if err != nil {
		return err
	}
	s.Run(ctx)
	return nil
}

func newSyncCmd(load loadFunc) *cobra.Command {
	var resources []string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(true)
			if err != nil {
				return err
			}
			list, err := resourcesOrDefault(cfg, resources)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			runCtx, cancel := a.runContext(ctx)
			defer cancel()
			result, err := a.coordinator.RunAll(runCtx, list)
			printResult(cmd, result)
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&resources, "resources", "r", nil, "Resources to sync (default sync.resources)")
	return cmd
}

func newBackfillCmd(load loadFunc) *cobra.Command {
	var (
		startFlag, endFlag string
		resources          []string
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-sync resources from a start date",
		Long: `Backfill moves the watermarks of the selected resources to --start, runs a
sync and restores every watermark afterwards, so scheduled syncs continue
from where they were. --end is validated and logged; upstream records changed
after it are synced too.

Example:
  shopsync backfill --start 2024-01-01 --resources orders`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate(startFlag)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			var end time.Time
			if endFlag != "" {
				if end, err = parseDate(endFlag); err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
			}

			cfg, err := load(true)
			if err != nil {
				return err
			}
			list, err := resourcesOrDefault(cfg, resources)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			runCtx, cancel := a.runContext(ctx)
			defer cancel()
			result, err := a.coordinator.Backfill(runCtx, start, end, list)
			printResult(cmd, result)
			return err
		},
	}
	cmd.Flags().StringVar(&startFlag, "start", "", "Start date, YYYY-MM-DD or RFC3339 (required)")
	cmd.Flags().StringVar(&endFlag, "end", "", "End date, YYYY-MM-DD or RFC3339")
	cmd.Flags().StringSliceVarP(&resources, "resources", "r", nil, "Resources to backfill (default sync.resources)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newStateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the checkpoint document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(false)
			if err != nil {
				return err
			}
			log := logger.Get().With(zap.String("component", "shopsync-cli"))

			store, closeFn, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			doc, err := store.Document()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	}
}

func newConfigCmd(load loadFunc) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(false)
			if err != nil {
				return err
			}
			if output != "" {
				return config.Save(output, cfg)
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the unmasked configuration to this file instead")
	return cmd
}

func resourcesOrDefault(cfg *config.Config, names []string) ([]models.Resource, error) {
	if len(names) == 0 {
		return cfg.SyncResources()
	}
	return config.ParseResources(names)
}

// parseDate accepts a calendar date (UTC midnight) or an RFC3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, synerrors.New(synerrors.ErrorTypeValidation, "date is empty")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, synerrors.Wrap(err, synerrors.ErrorTypeValidation, "expected YYYY-MM-DD or RFC3339").
			WithDetail("value", s)
	}
	return t.UTC(), nil
}

func printResult(cmd *cobra.Command, result engine.RunResult) {
	if result.RunID == "" {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s) finished in %s\n", result.RunID, result.Kind, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for _, r := range result.Resources {
		fmt.Fprintf(out, "  %-10s %-8s fetched=%d", r.Resource, r.Stage, r.Fetched)
		for table, n := range r.Written {
			fmt.Fprintf(out, " %s=%d", table, n)
		}
		fmt.Fprintln(out)
	}
}
