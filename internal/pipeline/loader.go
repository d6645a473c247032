package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// pipelineFile is the YAML shape of an operator-supplied pipeline definition
// file. Definitions are additive: builtin pipelines stay registered and file
// entries may shadow their file-type mappings.
type pipelineFile struct {
	Pipelines []pipelineSpec    `yaml:"pipelines"`
	FileTypes map[string]string `yaml:"file_types"`
}

type pipelineSpec struct {
	ID             string               `yaml:"id"`
	Stages         []string             `yaml:"stages"`
	Processors     map[string]string    `yaml:"processors"`
	Conditions     map[string]Condition `yaml:"conditions"`
	ParallelGroups [][]string           `yaml:"parallel_groups"`
	TimeoutSeconds int                  `yaml:"timeout_seconds"`
	StageTimeout   int                  `yaml:"stage_timeout_seconds"`
	RetryCount     *int                 `yaml:"retry_count"`
	Priority       string               `yaml:"priority"`
	Disabled       bool                 `yaml:"disabled"`
}

// LoadFile registers the pipelines defined in a YAML file. A missing file is
// not an error; operators without custom pipelines simply run the builtins.
func LoadFile(registry *Registry, cfg *config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read pipeline file %s: %w", path, err)
	}

	var file pipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse pipeline file %s: %w", path, err)
	}

	for _, spec := range file.Pipelines {
		p, err := spec.build(cfg)
		if err != nil {
			return fmt.Errorf("pipeline file %s: %w", path, err)
		}
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	for fileType, id := range file.FileTypes {
		registry.MapFileType(fileType, id)
	}
	return nil
}

func (s pipelineSpec) build(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{
		ID:           s.ID,
		Processors:   make(map[queue.Stage]string, len(s.Processors)),
		Conditions:   make(map[queue.Stage]Condition, len(s.Conditions)),
		Timeout:      cfg.PipelineTimeout(),
		StageTimeout: cfg.StageTimeout(),
		RetryCount:   cfg.Retry.MaxRetries,
		Priority:     queue.PriorityNormal,
		Enabled:      !s.Disabled,
	}
	if s.TimeoutSeconds > 0 {
		p.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	}
	if s.StageTimeout > 0 {
		p.StageTimeout = time.Duration(s.StageTimeout) * time.Second
	}
	if s.RetryCount != nil {
		p.RetryCount = *s.RetryCount
	}
	if s.Priority != "" {
		priority, ok := queue.ParsePriority(s.Priority)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: unknown priority %q", s.ID, s.Priority)
		}
		p.Priority = priority
	}

	for _, raw := range s.Stages {
		stage, ok := queue.ParseStage(raw)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: unknown stage %q", s.ID, raw)
		}
		p.Stages = append(p.Stages, stage)
	}
	for raw, processor := range s.Processors {
		stage, ok := queue.ParseStage(raw)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: processor binding for unknown stage %q", s.ID, raw)
		}
		p.Processors[stage] = processor
	}
	for raw, condition := range s.Conditions {
		stage, ok := queue.ParseStage(raw)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: condition for unknown stage %q", s.ID, raw)
		}
		p.Conditions[stage] = condition
	}
	for _, rawGroup := range s.ParallelGroups {
		group := make([]queue.Stage, 0, len(rawGroup))
		for _, raw := range rawGroup {
			stage, ok := queue.ParseStage(raw)
			if !ok {
				return nil, fmt.Errorf("pipeline %q: parallel group references unknown stage %q", s.ID, raw)
			}
			group = append(group, stage)
		}
		p.ParallelGroups = append(p.ParallelGroups, group)
	}
	return p, nil
}
