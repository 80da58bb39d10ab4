package scheduler

import (
	"fmt"
	"strings"
)

// DecompositionError reports that the model's task graph could not be
// parsed. Nothing executes when one is returned.
type DecompositionError struct {
	Err error
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("could not understand the goal: %v", e.Err)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// PolicyDeniedError reports that the Risk Governor rejected a task. The
// whole mission aborts and already-produced outputs are not surfaced.
type PolicyDeniedError struct {
	TaskID      string
	Description string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("blocked by policy: task %s (%s)", e.TaskID, e.Description)
}

// GraphStalledError reports a dependency set that can never be satisfied,
// either a cycle or a reference to a missing id. The mission ends with
// whatever subset completed; the ids left pending are carried here.
type GraphStalledError struct {
	PendingIDs []string
}

func (e *GraphStalledError) Error() string {
	return fmt.Sprintf("task graph stalled with %d tasks pending: %s",
		len(e.PendingIDs), strings.Join(e.PendingIDs, ", "))
}
