// Package scheduler decomposes a mission into a dependency-ordered task
// graph and executes it under the Risk Governor.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"omega/internal/brain"
	"omega/internal/events"
	"omega/internal/governor"
)

// Orchestrator runs missions end to end: Decomposing -> Executing ->
// Synthesizing -> Done | Aborted.
type Orchestrator struct {
	brain    brain.Client
	governor *governor.Governor
	model    string
	logger   *zap.Logger
}

// New creates an Orchestrator. model is the model id passed to every
// language-model call.
func New(client brain.Client, gov *governor.Governor, model string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{brain: client, governor: gov, model: model, logger: logger}
}

// Report is the terminal record of one mission.
type Report struct {
	MissionID string
	Graph     *TaskGraph
	Final     string
	Phases    []events.Phase
	Elapsed   time.Duration
}

// ExecuteMission runs the full mission lifecycle, emitting progress on ch
// (which may be nil). On a policy denial or decomposition failure the
// returned error is the only surfaced result; on a stalled graph both the
// partial Report and a *GraphStalledError are returned.
func (o *Orchestrator) ExecuteMission(ctx context.Context, mission string, ch chan<- events.Event) (*Report, error) {
	start := time.Now()
	report := &Report{MissionID: uuid.NewString()}

	o.phase(report, ch, events.PhaseDecomposing)
	graph, err := o.Decompose(ctx, mission)
	if err != nil {
		o.phase(report, ch, events.PhaseAborted)
		report.Elapsed = time.Since(start)
		return report, &DecompositionError{Err: err}
	}
	graph.MissionID = report.MissionID
	graph.MissionDescription = mission
	report.Graph = graph

	o.phase(report, ch, events.PhaseExecuting)
	outputs, execErr := o.execute(ctx, graph, ch)
	if execErr != nil {
		if _, stalled := execErr.(*GraphStalledError); !stalled {
			o.phase(report, ch, events.PhaseAborted)
			report.Elapsed = time.Since(start)
			return report, execErr
		}
		// A stalled graph still synthesizes what completed; the error is
		// surfaced alongside the partial report.
	}

	o.phase(report, ch, events.PhaseSynthesizing)
	report.Final = o.synthesize(ctx, mission, outputs)

	o.phase(report, ch, events.PhaseDone)
	report.Elapsed = time.Since(start)
	events.Emit(ch, events.Output{Text: report.Final})
	events.Emit(ch, events.Summary{
		MissionID: report.MissionID,
		Elapsed:   report.Elapsed,
		Phases:    report.Phases,
		Tokens:    len(strings.Fields(report.Final)),
	})
	return report, execErr
}

// Decompose asks the model for a task graph for the mission.
func (o *Orchestrator) Decompose(ctx context.Context, mission string) (*TaskGraph, error) {
	prompt := fmt.Sprintf(
		"Analyze MISSION: %q. Decompose this goal into a directed acyclic graph of sub-tasks. "+
			"Agents available: %s. "+
			`Output ONLY a JSON object: {"tasks": [{"id": "...", "description": "...", "depends_on": [], "assigned_agent": "..."}]}.`,
		mission, rosterNames())
	resp, err := o.brain.Generate(ctx, o.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("decomposition call: %w", err)
	}
	return parseTaskGraph(resp)
}

// execute walks the graph until every task is terminal or no progress is
// possible. Within each round the eligible set is gated through the
// Governor in graph order before anything dispatches; allowed tasks then
// run concurrently and their outputs are collected in graph order.
func (o *Orchestrator) execute(ctx context.Context, graph *TaskGraph, ch chan<- events.Event) ([]string, error) {
	done := make(map[string]struct{}, len(graph.Tasks))
	var outputs []string

	for len(done) < len(graph.Tasks) {
		eligible := o.eligibleTasks(graph, done)
		if len(eligible) == 0 {
			stalled := &GraphStalledError{PendingIDs: graph.pendingIDs()}
			o.logger.Warn("task graph stalled", zap.Strings("pending", stalled.PendingIDs))
			return outputs, stalled
		}

		for _, id := range eligible {
			task := graph.task(id)
			if o.governor.AssessRisk(task.Description) {
				continue
			}
			task.Status = events.TaskFailed
			events.Emit(ch, events.TaskUpdate{
				TaskID: task.ID,
				Agent:  task.AssignedAgent,
				Status: events.TaskFailed,
				Detail: "blocked by policy",
			})
			o.logger.Warn("mission aborted by governor", zap.String("task", task.ID))
			return nil, &PolicyDeniedError{TaskID: task.ID, Description: task.Description}
		}

		group, groupCtx := errgroup.WithContext(ctx)
		results := make([]string, len(eligible))
		for i, id := range eligible {
			task := graph.task(id)
			agent := lookupAgent(task.AssignedAgent)
			task.Status = events.TaskRunning
			events.Emit(ch, events.TaskUpdate{
				TaskID: task.ID, Agent: agent.Name,
				Status: events.TaskRunning, Detail: task.Description,
			})

			group.Go(func() error {
				results[i] = o.performTask(groupCtx, agent, task.Description)
				return nil
			})
		}
		_ = group.Wait()

		for i, id := range eligible {
			task := graph.task(id)
			task.Status = events.TaskDone
			task.Output = results[i]
			outputs = append(outputs, results[i])
			done[id] = struct{}{}
			events.Emit(ch, events.TaskUpdate{
				TaskID: task.ID,
				Agent:  lookupAgent(task.AssignedAgent).Name,
				Status: events.TaskDone,
				Detail: "completed",
			})
		}
	}
	return outputs, nil
}

// eligibleTasks returns Pending tasks whose dependencies are all done, in
// graph order.
func (o *Orchestrator) eligibleTasks(graph *TaskGraph, done map[string]struct{}) []string {
	var out []string
	for _, t := range graph.Tasks {
		if t.Status != events.TaskPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if _, ok := done[dep]; !ok {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t.ID)
		}
	}
	return out
}

// performTask dispatches one agent. A failed model call degrades to empty
// output rather than failing the mission.
func (o *Orchestrator) performTask(ctx context.Context, agent Agent, description string) string {
	prompt := fmt.Sprintf("SYSTEM: You are %s, the %s. %s TASK: %s",
		agent.Name, agent.Role, agent.Persona, description)
	out, err := o.brain.Generate(ctx, o.model, prompt)
	if err != nil {
		o.logger.Warn("agent call failed, treating as empty output",
			zap.String("agent", agent.Name), zap.Error(err))
		return ""
	}
	return out
}

// synthesize folds the collected outputs into one final response grounded
// in the original mission. A failed call falls back to the raw concatenation.
func (o *Orchestrator) synthesize(ctx context.Context, mission string, outputs []string) string {
	combined := strings.Join(outputs, "\n")
	prompt := fmt.Sprintf("MISSION: %s\nDRAFT: %s\nCOMMAND: Finalize this response grounded in the mission.",
		mission, combined)
	final, err := o.brain.Generate(ctx, o.model, prompt)
	if err != nil {
		o.logger.Warn("synthesis call failed, using combined draft", zap.Error(err))
		return combined
	}
	return final
}

func (o *Orchestrator) phase(report *Report, ch chan<- events.Event, p events.Phase) {
	report.Phases = append(report.Phases, p)
	events.Emit(ch, events.Status{MissionID: report.MissionID, Phase: p})
	o.logger.Info("mission phase", zap.String("mission", report.MissionID), zap.String("phase", string(p)))
}

func rosterNames() string {
	names := make([]string, len(Roster))
	for i, a := range Roster {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
