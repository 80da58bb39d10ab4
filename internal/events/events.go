// Package events defines the event stream emitted by the core engine.
// The presentation layers (CLI, HTTP) consume these on a channel and render
// them however they like; the core never blocks on a slow consumer.
package events

import (
	"time"

	"omega/internal/devices"
)

// TaskStatus is the lifecycle state of a subtask. Transitions are one-way:
// Pending -> Running -> Done | Failed.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Phase is the coarse state of a mission.
type Phase string

const (
	PhaseDecomposing  Phase = "decomposing"
	PhaseExecuting    Phase = "executing"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
	PhaseAborted      Phase = "aborted"
)

// Event is the marker interface for everything crossing the engine boundary.
type Event interface{ isEvent() }

// Output is a complete message for the output panel (non-streaming).
type Output struct {
	Text string
}

// Stream is a partial streaming update.
type Stream struct {
	Text string
}

// Status announces a mission phase transition.
type Status struct {
	MissionID string
	Phase     Phase
}

// TaskUpdate reports a subtask status transition.
type TaskUpdate struct {
	TaskID string
	Agent  string
	Status TaskStatus
	Detail string
}

// Trace is a diagnostic line, typically from a skill's log import.
type Trace struct {
	Source string
	Line   string
}

// Devices is a fresh snapshot of the registry, for device panels.
type Devices struct {
	Entities []devices.Entity
}

// Summary closes out a completed interaction.
type Summary struct {
	MissionID string
	Elapsed   time.Duration
	Phases    []Phase
	Tokens    int
}

func (Output) isEvent()     {}
func (Stream) isEvent()     {}
func (Status) isEvent()     {}
func (TaskUpdate) isEvent() {}
func (Trace) isEvent()      {}
func (Devices) isEvent()    {}
func (Summary) isEvent()    {}

// Emit sends e on ch without blocking; events are best-effort and a full or
// nil channel must never stall the engine.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}
