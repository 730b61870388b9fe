package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// State is the lifecycle position of a run.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

var transitions = map[State][]State{
	StateNotStarted: {StateRunning, StateFailed},
	StateRunning:    {StateRunning, StateCompleted, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run is the transient aggregate of one pipeline execution. It is owned by
// the goroutine executing it and is not safe for concurrent mutation.
type Run struct {
	ID       uuid.UUID
	Pipeline string
	Inputs   map[string]any
	Results  []StageResult
	State    State

	// Stage is the index of the stage running or last attempted, -1 before the first.
	Stage int

	// FailedStage names the stage that ended the run, empty otherwise.
	FailedStage string
	Err         error

	Started time.Time
	Ended   time.Time
}

func newRun(pipeline string, inputs map[string]any) *Run {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Run{
		ID:       uuid.New(),
		Pipeline: pipeline,
		Inputs:   inputs,
		State:    StateNotStarted,
		Stage:    -1,
	}
}

// advance moves the run to the given stage index.
func (r *Run) advance(stage int) error {
	if err := r.transition(StateRunning); err != nil {
		return err
	}
	r.Stage = stage
	return nil
}

func (r *Run) record(stage string, payload recovery.Payload) {
	r.Results = append(r.Results, StageResult{Stage: stage, Payload: payload})
}

func (r *Run) complete(now time.Time) error {
	if err := r.transition(StateCompleted); err != nil {
		return err
	}
	r.Ended = now
	return nil
}

func (r *Run) fail(stage string, err error, now time.Time) {
	if r.State.IsTerminal() {
		return
	}
	r.State = StateFailed
	r.FailedStage = stage
	r.Err = err
	r.Ended = now
}

func (r *Run) transition(to State) error {
	if !canTransition(r.State, to) {
		return errors.Wrapf(errors.ErrInternal, "invalid run transition %s -> %s", r.State, to)
	}
	r.State = to
	return nil
}

// Duration returns the total run time, or the time so far while running.
func (r *Run) Duration() time.Duration {
	if r.Ended.IsZero() {
		return time.Since(r.Started)
	}
	return r.Ended.Sub(r.Started)
}

// Success returns true if every stage completed.
func (r *Run) Success() bool {
	return r.State == StateCompleted
}

// Result returns the payload recovered for a stage.
func (r *Run) Result(stage string) (recovery.Payload, bool) {
	for _, res := range r.Results {
		if res.Stage == stage {
			return res.Payload, true
		}
	}
	return nil, false
}

// Payloads returns every recovered payload keyed by stage id.
func (r *Run) Payloads() map[string]recovery.Payload {
	out := make(map[string]recovery.Payload, len(r.Results))
	for _, res := range r.Results {
		out[res.Stage] = res.Payload
	}
	return out
}
