package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap configuration",
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config file: %s\n\n", ctx.configPath)
			}
			fmt.Fprintf(out, "data dir: %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "log dir: %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "upload dir: %s\n", cfg.Paths.UploadDir)
			fmt.Fprintf(out, "thumbnail dir: %s\n", cfg.Paths.ThumbnailDir)
			fmt.Fprintf(out, "workers: %d (stage parallelism %d)\n",
				cfg.Workers.MaxConcurrentTasks, cfg.Workers.StageParallelism)
			fmt.Fprintf(out, "poll interval: %ds\n", cfg.Workers.QueuePollInterval)
			fmt.Fprintf(out, "retries: %d (backoff %ds, cap %ds, auto retry %s)\n",
				cfg.Retry.MaxRetries, cfg.Retry.BackoffSeconds, cfg.Retry.BackoffCap, yesNo(cfg.Retry.AutoRetry))
			fmt.Fprintf(out, "stage timeout: %s\n", cfg.StageTimeout())
			fmt.Fprintf(out, "pipeline timeout: %s\n", cfg.PipelineTimeout())
			fmt.Fprintf(out, "result cache: ttl %s, max %d entries\n", cfg.ResultTTL(), cfg.Cache.MaxEntries)
			fmt.Fprintf(out, "watch uploads: %s (interval %ds)\n", yesNo(cfg.Watch.Enabled), cfg.Watch.Interval)
			fmt.Fprintf(out, "logging: %s at %s\n", cfg.Logging.Format, cfg.Logging.Level)
			if cfg.Pipelines.File != "" {
				fmt.Fprintf(out, "pipeline file: %s\n", cfg.Pipelines.File)
			}
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
