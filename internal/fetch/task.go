package fetch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck/internal/storage"
)

// State is a fetch task's lifecycle position.
type State string

const (
	StatePending   State = "pending"
	StateReserved  State = "reserved"
	StateInFlight  State = "in_flight"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// taskTransitions is the full set of legal moves. Reserved happens after
// quota admission; Retrying only after a transient in-flight failure;
// Retrying to Failed covers cancellation during backoff.
var taskTransitions = map[State][]State{
	StatePending:  {StateReserved},
	StateReserved: {StateInFlight},
	StateInFlight: {StateSucceeded, StateRetrying, StateFailed},
	StateRetrying: {StateInFlight, StateFailed},
}

// Task tracks one fetch through its lifecycle. Tasks live only in memory
// and belong to a single goroutine; a terminal task is never reused.
type Task struct {
	ID          string
	Source      string
	Fingerprint string
	Depth       storage.Depth
	Attempts    int // connector calls made so far

	state State
}

func NewTask(source, fingerprint string, depth storage.Depth) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Source:      source,
		Fingerprint: fingerprint,
		Depth:       depth,
		state:       StatePending,
	}
}

func (t *Task) State() State { return t.state }

// Done reports whether the task reached a terminal state.
func (t *Task) Done() bool {
	return t.state == StateSucceeded || t.state == StateFailed
}

// Reserve marks quota admission.
func (t *Task) Reserve() { t.to(StateReserved) }

// Start marks a connector call beginning, first attempt or retry.
func (t *Task) Start() {
	t.to(StateInFlight)
	t.Attempts++
}

// Retry marks a transient failure with attempts left.
func (t *Task) Retry() { t.to(StateRetrying) }

// Succeed marks the fetch persisted.
func (t *Task) Succeed() { t.to(StateSucceeded) }

// Fail marks the task dead: retries exhausted, source blocked, or the task
// budget ran out.
func (t *Task) Fail() { t.to(StateFailed) }

// to enforces the transition table. An illegal move is a programming error
// in the orchestrator, not a runtime condition.
func (t *Task) to(next State) {
	for _, allowed := range taskTransitions[t.state] {
		if allowed == next {
			t.state = next
			return
		}
	}
	panic(fmt.Sprintf("fetch: illegal task transition from %s to %s", t.state, next))
}
