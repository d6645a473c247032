// Package pipeline defines processing pipelines: ordered stage lists with
// per-stage processor bindings, skip conditions, parallel groupings, and
// timeout/retry policy. Pipelines are registered once at startup and are
// read-only afterwards.
package pipeline

import (
	"fmt"
	"time"

	"conveyor/internal/queue"
)

// Condition gates a stage on properties of the task's file. The zero value
// matches every task.
type Condition struct {
	FileTypes   []string `yaml:"file_types"`
	MinFileSize int64    `yaml:"min_file_size"`
	MaxFileSize int64    `yaml:"max_file_size"`
}

// Matches reports whether the task satisfies the condition.
func (c Condition) Matches(task *queue.Task) bool {
	if len(c.FileTypes) > 0 {
		found := false
		for _, fileType := range c.FileTypes {
			if fileType == task.FileType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	size := task.FileSize()
	if c.MinFileSize > 0 && size < c.MinFileSize {
		return false
	}
	if c.MaxFileSize > 0 && size > c.MaxFileSize {
		return false
	}
	return true
}

// Pipeline is an immutable-after-registration processing definition.
type Pipeline struct {
	ID             string
	Stages         []queue.Stage
	Processors     map[queue.Stage]string
	Conditions     map[queue.Stage]Condition
	ParallelGroups [][]queue.Stage
	Timeout        time.Duration
	StageTimeout   time.Duration
	RetryCount     int
	Priority       queue.Priority
	Enabled        bool
}

// Validate checks structural soundness: every stage must be known and bound
// to a processor, and parallel groups must partition the stage list without
// reordering across group boundaries.
func (p *Pipeline) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pipeline id is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %q has no stages", p.ID)
	}

	position := make(map[queue.Stage]int, len(p.Stages))
	for i, stage := range p.Stages {
		if _, ok := queue.ParseStage(string(stage)); !ok {
			return fmt.Errorf("pipeline %q references unknown stage %q", p.ID, stage)
		}
		if _, dup := position[stage]; dup {
			return fmt.Errorf("pipeline %q lists stage %q twice", p.ID, stage)
		}
		position[stage] = i
		if p.Processors[stage] == "" {
			return fmt.Errorf("pipeline %q stage %q has no processor binding", p.ID, stage)
		}
	}

	grouped := make(map[queue.Stage]struct{})
	for _, group := range p.ParallelGroups {
		if len(group) == 0 {
			return fmt.Errorf("pipeline %q declares an empty parallel group", p.ID)
		}
		for i, stage := range group {
			pos, ok := position[stage]
			if !ok {
				return fmt.Errorf("pipeline %q parallel group references stage %q not in stages", p.ID, stage)
			}
			if _, dup := grouped[stage]; dup {
				return fmt.Errorf("pipeline %q stage %q appears in more than one parallel group", p.ID, stage)
			}
			grouped[stage] = struct{}{}
			// Group members must be consecutive in the stage list so that
			// grouping never reorders stages across group boundaries.
			if i > 0 && pos != position[group[i-1]]+1 {
				return fmt.Errorf("pipeline %q parallel group %v is not consecutive in stages", p.ID, group)
			}
		}
	}

	for stage := range p.Conditions {
		if _, ok := position[stage]; !ok {
			return fmt.Errorf("pipeline %q condition references stage %q not in stages", p.ID, stage)
		}
	}
	for stage := range p.Processors {
		if _, ok := position[stage]; !ok {
			return fmt.Errorf("pipeline %q binds processor for stage %q not in stages", p.ID, stage)
		}
	}
	return nil
}

// Groups expands the stage list into ordered execution groups: stages inside
// one declared parallel group run concurrently as a unit, and every other
// stage is its own singleton group.
func (p *Pipeline) Groups() [][]queue.Stage {
	groupOf := make(map[queue.Stage][]queue.Stage)
	first := make(map[queue.Stage]queue.Stage)
	for _, group := range p.ParallelGroups {
		for _, stage := range group {
			groupOf[stage] = group
			first[stage] = group[0]
		}
	}

	groups := make([][]queue.Stage, 0, len(p.Stages))
	for _, stage := range p.Stages {
		group, ok := groupOf[stage]
		if !ok {
			groups = append(groups, []queue.Stage{stage})
			continue
		}
		// Emit each parallel group once, where its first member appears.
		if first[stage] == stage {
			cp := make([]queue.Stage, len(group))
			copy(cp, group)
			groups = append(groups, cp)
		}
	}
	return groups
}

// Condition returns the stage's gating condition; the zero value matches all.
func (p *Pipeline) Condition(stage queue.Stage) Condition {
	return p.Conditions[stage]
}
