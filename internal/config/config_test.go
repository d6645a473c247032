package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conveyor/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Workers.MaxConcurrentTasks <= 0 {
		t.Fatal("expected positive worker count")
	}
	if !cfg.Retry.AutoRetry {
		t.Fatal("expected auto retry enabled by default")
	}
}

func TestLoadAppliesFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[workers]
max_concurrent_tasks = 7

[retry]
max_retries = 5
backoff_seconds = 1
backoff_cap = 30
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Workers.MaxConcurrentTasks != 7 {
		t.Fatalf("max_concurrent_tasks = %d, want 7", cfg.Workers.MaxConcurrentTasks)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Fatalf("max_retries = %d, want 5", cfg.Retry.MaxRetries)
	}
	// Unset sections keep defaults.
	if cfg.Stages.StageTimeout <= 0 {
		t.Fatal("expected default stage timeout")
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[logging]
format = "xml"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log format")
	} else if !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTimeoutOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Stages.StageTimeout = 600
	cfg.Stages.PipelineTimeout = 60
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected pipeline_timeout ordering error")
	}
}

func TestSampleConfigMentionsEverySection(t *testing.T) {
	sample := config.SampleConfig()
	for _, section := range []string{"[paths]", "[workers]", "[retry]", "[cache]", "[stages]", "[watch]", "[logging]", "[pipelines]"} {
		if !strings.Contains(sample, section) {
			t.Fatalf("sample config missing section %s", section)
		}
	}
}
