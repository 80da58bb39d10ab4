// Package jobs runs recurring missions from an operator-maintained
// manifest. Each job becomes a normal mission through the scheduler.
package jobs

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"omega/internal/events"
	"omega/internal/scheduler"
)

// Metadata describes the manifest itself.
type Metadata struct {
	Version string `yaml:"version"`
	Origin  string `yaml:"origin"`
}

// Job is one recurring mission.
type Job struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Priority    string   `yaml:"priority"`
	Description string   `yaml:"description"`
	Agents      []string `yaml:"agents"`
}

// Manifest is the parsed jobs file.
type Manifest struct {
	Metadata Metadata `yaml:"metadata"`
	Jobs     []Job    `yaml:"jobs"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse jobs manifest: %w", err)
	}
	return &m, nil
}

// Runner executes manifest jobs through the mission orchestrator.
type Runner struct {
	orchestrator *scheduler.Orchestrator
	logger       *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(o *scheduler.Orchestrator, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{orchestrator: o, logger: logger}
}

// RunAll executes every job in the manifest, in order. Jobs run to
// completion independently; one failed job does not stop the rest.
func (r *Runner) RunAll(ctx context.Context, m *Manifest, ch chan<- events.Event) error {
	var failed int
	for _, job := range m.Jobs {
		mission := fmt.Sprintf("JOB %s: %s. TASK: %s", job.ID, job.Name, job.Description)
		r.logger.Info("running job", zap.String("job", job.ID), zap.String("name", job.Name))
		if _, err := r.orchestrator.ExecuteMission(ctx, mission, ch); err != nil {
			r.logger.Warn("job did not complete cleanly",
				zap.String("job", job.ID), zap.Error(err))
			failed++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs did not complete cleanly", failed, len(m.Jobs))
	}
	return nil
}
