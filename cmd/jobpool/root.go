package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdziat/simple-job-pool/internal/app"
	"github.com/jdziat/simple-job-pool/pkg/config"
	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/logger"
	"github.com/jdziat/simple-job-pool/pkg/storage"
)

// rootCmd is the root Cobra command. Running it without a subcommand
// starts the server.
func rootCmd() *cobra.Command {
	return newRootCmd(config.New())
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "jobpool",
		Short: "jobpool runs an in-memory job queue with a pool of workers behind an HTTP API.",
		Long: `jobpool runs an in-memory job queue with a pool of workers behind an HTTP API.

Configuration is read from defaults, an optional config file (--config),
environment variables prefixed with JOBPOOL_ (for example JOBPOOL_POOL_WORKERS)
and command-line flags, in increasing order of precedence.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v, configPath)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml)")
	addServeFlags(cmd, v)

	cmd.AddCommand(
		serveCmd(v, &configPath),
		pruneCmd(v, &configPath),
	)
	return cmd
}

func serveCmd(v *viper.Viper, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the worker pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v, *configPath)
		},
	}
	addServeFlags(cmd, v)
	return cmd
}

func addServeFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("addr", "", "HTTP listen address")
	flags.Int("workers", 0, "number of workers")
	flags.Int("max-retries", 0, "retries per job before it fails")
	flags.Duration("duration", 0, "simulated execution time per attempt")
	flags.Float64("failure-rate", 0, "probability that an attempt fails")
	flags.Duration("retention-ttl", 0, "how long finished jobs stay in memory (0 keeps them forever)")
	flags.String("archive-dsn", "", "sqlite DSN for archiving evicted jobs")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or text")

	bindings := map[string]string{
		"http.addr":             "addr",
		"pool.workers":          "workers",
		"jobs.max_retries":      "max-retries",
		"executor.duration":     "duration",
		"executor.failure_rate": "failure-rate",
		"retention.ttl":         "retention-ttl",
		"archive.dsn":           "archive-dsn",
		"log.level":             "log-level",
		"log.format":            "log-format",
	}
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, name := range bindings {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

func loadConfig(v *viper.Viper, path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format, logger.RequestID)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func serve(ctx context.Context, v *viper.Viper, path string) error {
	cfg, log, err := loadConfig(v, path)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	log.Info("starting jobpool",
		"workers", cfg.Pool.Workers,
		"max_retries", cfg.Jobs.MaxRetries,
		"archive", cfg.Archive.Enabled(),
	)
	return a.Run(ctx)
}

func pruneCmd(v *viper.Viper, configPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived jobs older than the given age.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v, *configPath)
			if err != nil {
				return err
			}
			if !cfg.Archive.Enabled() {
				return fmt.Errorf("%w: set archive.dsn or --archive-dsn", core.ErrArchiveDisabled)
			}

			db, err := storage.Open(cfg.Archive.Driver, cfg.Archive.DSN)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			archive := storage.NewGormArchive(db)
			if err := archive.Migrate(cmd.Context()); err != nil {
				return err
			}
			removed, err := archive.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			log.Info("archive pruned", "removed", removed, "older_than", olderThan)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d archived jobs\n", removed)
			return nil
		},
	}
	cmd.Flags().String("archive-dsn", "", "sqlite DSN of the archive")
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of rows to delete")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return v.BindPFlag("archive.dsn", cmd.Flags().Lookup("archive-dsn"))
	}
	return cmd
}
