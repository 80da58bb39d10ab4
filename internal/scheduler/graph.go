package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"

	"omega/internal/events"
)

// SubTask is one node of a mission's task graph.
type SubTask struct {
	ID            string            `json:"id"`
	Description   string            `json:"description"`
	DependsOn     []string          `json:"depends_on"`
	AssignedAgent string            `json:"assigned_agent"`
	Status        events.TaskStatus `json:"status"`
	Output        string            `json:"output,omitempty"`
}

// TaskGraph is the DAG of subtasks derived from one mission. Task order in
// Tasks is the deterministic dispatch and collection order.
type TaskGraph struct {
	MissionID          string    `json:"mission_id"`
	MissionDescription string    `json:"mission_description"`
	Status             string    `json:"status"`
	Tasks              []SubTask `json:"tasks"`
}

// parseTaskGraph decodes the model's JSON into a graph. Models habitually
// wrap JSON in markdown fences; those are stripped first. Every task starts
// Pending. Duplicate ids and self-references are data-quality faults caught
// here; a dangling depends_on is not, it surfaces as a stall at runtime.
func parseTaskGraph(raw string) (*TaskGraph, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var graph TaskGraph
	if err := json.Unmarshal([]byte(clean), &graph); err != nil {
		return nil, fmt.Errorf("task graph json: %w", err)
	}
	if len(graph.Tasks) == 0 {
		return nil, fmt.Errorf("task graph has no tasks")
	}

	seen := make(map[string]struct{}, len(graph.Tasks))
	for i := range graph.Tasks {
		task := &graph.Tasks[i]
		if task.ID == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}
		if _, dup := seen[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		seen[task.ID] = struct{}{}
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return nil, fmt.Errorf("task %q depends on itself", task.ID)
			}
		}
		task.Status = events.TaskPending
		task.Output = ""
	}
	return &graph, nil
}

// task returns a pointer into the graph for the given id.
func (g *TaskGraph) task(id string) *SubTask {
	for i := range g.Tasks {
		if g.Tasks[i].ID == id {
			return &g.Tasks[i]
		}
	}
	return nil
}

// pendingIDs lists the ids of tasks still Pending, in graph order.
func (g *TaskGraph) pendingIDs() []string {
	var out []string
	for _, t := range g.Tasks {
		if t.Status == events.TaskPending {
			out = append(out, t.ID)
		}
	}
	return out
}
