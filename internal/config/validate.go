package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Watch.Enabled && c.Paths.UploadDir == "" {
		return errors.New("paths.upload_dir must be set when watch.enabled is true")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	return ensurePositiveMap(map[string]int{
		"workers.max_concurrent_tasks": c.Workers.MaxConcurrentTasks,
		"workers.stage_parallelism":    c.Workers.StageParallelism,
		"workers.queue_poll_interval":  c.Workers.QueuePollInterval,
		"workers.error_retry_interval": c.Workers.ErrorRetryInterval,
	})
}

func (c *Config) validateStages() error {
	if err := ensurePositiveMap(map[string]int{
		"stages.stage_timeout":    c.Stages.StageTimeout,
		"stages.pipeline_timeout": c.Stages.PipelineTimeout,
		"cache.result_ttl":        c.Cache.ResultTTL,
		"retry.backoff_seconds":   c.Retry.BackoffSeconds,
		"retry.backoff_cap":       c.Retry.BackoffCap,
	}); err != nil {
		return err
	}
	if c.Stages.PipelineTimeout < c.Stages.StageTimeout {
		return errors.New("stages.pipeline_timeout must be at least stages.stage_timeout")
	}
	if c.Retry.BackoffCap < c.Retry.BackoffSeconds {
		return errors.New("retry.backoff_cap must be at least retry.backoff_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
