package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	UploadDir    string `toml:"upload_dir"`
	ThumbnailDir string `toml:"thumbnail_dir"`
}

// Workers contains worker pool sizing and daemon timing.
type Workers struct {
	MaxConcurrentTasks int `toml:"max_concurrent_tasks"`
	StageParallelism   int `toml:"stage_parallelism"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Retry contains automatic retry policy for failed stages.
type Retry struct {
	AutoRetry      bool `toml:"auto_retry"`
	MaxRetries     int  `toml:"max_retries"`
	BackoffSeconds int  `toml:"backoff_seconds"`
	BackoffCap     int  `toml:"backoff_cap"`
}

// Cache contains the stage result cache settings.
type Cache struct {
	ResultTTL  int `toml:"result_ttl"`
	MaxEntries int `toml:"max_entries"`
}

// Stages contains default stage and pipeline timeouts.
type Stages struct {
	StageTimeout    int `toml:"stage_timeout"`
	PipelineTimeout int `toml:"pipeline_timeout"`
}

// Watch contains the upload directory watcher settings.
type Watch struct {
	Enabled           bool `toml:"enabled"`
	Interval          int  `toml:"interval"`
	RemoveAfterSubmit bool `toml:"remove_after_submit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Pipelines contains pipeline definition sources.
type Pipelines struct {
	File string `toml:"file"`
}

// Config encapsulates all configuration values for Conveyor.
//
// Configuration sections by subsystem:
//   - Paths: data, log, upload, and thumbnail directories
//   - Workers: task worker pool sizing and polling intervals
//   - Retry: per-stage automatic retry policy and backoff
//   - Cache: stage result cache TTL and capacity
//   - Stages: default stage and pipeline timeouts
//   - Watch: upload directory ingestion
//   - Logging: log format and level
//   - Pipelines: optional YAML pipeline definitions file
type Config struct {
	Paths     Paths     `toml:"paths"`
	Workers   Workers   `toml:"workers"`
	Retry     Retry     `toml:"retry"`
	Cache     Cache     `toml:"cache"`
	Stages    Stages    `toml:"stages"`
	Watch     Watch     `toml:"watch"`
	Logging   Logging   `toml:"logging"`
	Pipelines Pipelines `toml:"pipelines"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conveyor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("conveyor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// UploadDir is created on a best-effort basis so the daemon can run when
// the upload mount is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ThumbnailDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.UploadDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.UploadDir, 0o755)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// StageTimeout returns the default per-stage timeout as a duration.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Stages.StageTimeout) * time.Second
}

// PipelineTimeout returns the default pipeline wall-clock budget as a duration.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Stages.PipelineTimeout) * time.Second
}

// BackoffBase returns the retry backoff base as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BackoffSeconds) * time.Second
}

// BackoffCap returns the maximum retry backoff as a duration.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Retry.BackoffCap) * time.Second
}

// ResultTTL returns the stage result cache TTL as a duration.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Cache.ResultTTL) * time.Second
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
