package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/processor"
	"conveyor/internal/queue"
	"conveyor/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// withStore opens the task store for one command invocation.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// withManager builds the full engine wiring (store, registries, manager)
// without starting workers. Control and submission commands act through the
// manager so the CLI and a running daemon share transition semantics.
func (c *commandContext) withManager(fn func(*config.Config, *queue.Store, *workflow.Manager) error) error {
	return c.withStore(func(cfg *config.Config, store *queue.Store) error {
		pipelines, err := pipeline.NewDefaultRegistry(cfg)
		if err != nil {
			return err
		}
		if cfg.Pipelines.File != "" {
			if err := pipeline.LoadFile(pipelines, cfg, cfg.Pipelines.File); err != nil {
				return err
			}
		}
		processors := processor.NewRegistry()
		processor.RegisterBuiltins(processors, cfg)
		manager := workflow.NewManager(cfg, store, pipelines, processors, logging.NewNop())
		return fn(cfg, store, manager)
	})
}

func (c *commandContext) pipelineRegistry() (*config.Config, *pipeline.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	pipelines, err := pipeline.NewDefaultRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pipelines.File != "" {
		if err := pipeline.LoadFile(pipelines, cfg, cfg.Pipelines.File); err != nil {
			return nil, nil, err
		}
	}
	return cfg, pipelines, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
