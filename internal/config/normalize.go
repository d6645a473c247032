package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkers()
	c.normalizeRetry()
	c.normalizeCache()
	c.normalizeStages()
	c.normalizeWatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ThumbnailDir) == "" {
		c.Paths.ThumbnailDir = defaultThumbnailDir
	}
	if c.Paths.ThumbnailDir, err = expandPath(c.Paths.ThumbnailDir); err != nil {
		return fmt.Errorf("paths.thumbnail_dir: %w", err)
	}
	if c.Pipelines.File != "" {
		if c.Pipelines.File, err = expandPath(c.Pipelines.File); err != nil {
			return fmt.Errorf("pipelines.file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeWorkers() {
	if c.Workers.MaxConcurrentTasks <= 0 {
		c.Workers.MaxConcurrentTasks = defaultMaxConcurrentTasks
	}
	if c.Workers.StageParallelism <= 0 {
		c.Workers.StageParallelism = defaultStageParallelism
	}
	if c.Workers.QueuePollInterval <= 0 {
		c.Workers.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workers.ErrorRetryInterval <= 0 {
		c.Workers.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.Retry.BackoffSeconds <= 0 {
		c.Retry.BackoffSeconds = defaultBackoffSeconds
	}
	if c.Retry.BackoffCap <= 0 {
		c.Retry.BackoffCap = defaultBackoffCap
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.ResultTTL <= 0 {
		c.Cache.ResultTTL = defaultResultTTL
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = defaultCacheMaxEntries
	}
}

func (c *Config) normalizeStages() {
	if c.Stages.StageTimeout <= 0 {
		c.Stages.StageTimeout = defaultStageTimeout
	}
	if c.Stages.PipelineTimeout <= 0 {
		c.Stages.PipelineTimeout = defaultPipelineTimeout
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = defaultWatchInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
