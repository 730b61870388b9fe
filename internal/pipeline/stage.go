package pipeline

import (
	"context"
	"fmt"

	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// ContextRule decides what a stage receives besides the request inputs.
type ContextRule string

const (
	// ContextOriginal passes only the request inputs
	ContextOriginal ContextRule = "original"

	// ContextPrevious adds the payload of the immediately preceding stage
	ContextPrevious ContextRule = "previous"

	// ContextAccumulated adds the payloads of every earlier stage
	ContextAccumulated ContextRule = "accumulated"
)

// Stage describes one step of a pipeline.
type Stage struct {
	// ID names the stage on the wire ("task" field of task_complete).
	ID string

	// Status is announced before the stage runs. The first stage has
	// none; the pipeline's start message announces it.
	Status string

	// FailureMessage replaces the default "Failed to process {ID} data".
	FailureMessage string

	// Context defaults to ContextOriginal when empty.
	Context ContextRule

	// Agent selects the prompt profile the stage runner uses.
	Agent string

	// Temperature is the default sampling temperature for this stage.
	Temperature float64
}

// ErrorMessage is the text of the error event emitted when the stage fails.
func (s Stage) ErrorMessage() string {
	if s.FailureMessage != "" {
		return s.FailureMessage
	}
	return fmt.Sprintf("Failed to process %s data", s.ID)
}

// Definition is an ordered, static list of stages plus the messages that
// open and close a successful stream.
type Definition struct {
	Name            string
	StartMessage    string
	CompleteMessage string
	Stages          []Stage
}

// Validate checks that the definition can drive a run.
func (d Definition) Validate() error {
	if d.Name == "" {
		return errors.NewValidationError("name", "pipeline name is required", d.Name)
	}
	if len(d.Stages) == 0 {
		return errors.NewValidationError("stages", "at least one stage is required", d.Name)
	}
	if d.StartMessage == "" || d.CompleteMessage == "" {
		return errors.NewValidationError("messages", "start and complete messages are required", d.Name)
	}

	seen := make(map[string]struct{}, len(d.Stages))
	for i, s := range d.Stages {
		if s.ID == "" {
			return errors.NewValidationError("stages", fmt.Sprintf("stage %d has no id", i), d.Name)
		}
		if _, dup := seen[s.ID]; dup {
			return errors.NewValidationError("stages", "duplicate stage id", s.ID)
		}
		seen[s.ID] = struct{}{}

		if i > 0 && s.Status == "" {
			return errors.NewValidationError("stages", "status message is required", s.ID)
		}
		if i == 0 && s.Status != "" {
			return errors.NewValidationError("stages", "the first stage is announced by the start message", s.ID)
		}
		switch s.Context {
		case "", ContextOriginal, ContextPrevious, ContextAccumulated:
		default:
			return errors.NewValidationError("stages", "unknown context rule "+string(s.Context), s.ID)
		}
	}
	return nil
}

// Stage returns the stage with the given id.
func (d Definition) Stage(id string) (Stage, bool) {
	for _, s := range d.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// WithTemperatures returns a copy whose stage temperatures are replaced by
// the entries of overrides keyed by stage id.
func (d Definition) WithTemperatures(overrides map[string]float64) Definition {
	stages := make([]Stage, len(d.Stages))
	copy(stages, d.Stages)
	for i := range stages {
		if t, ok := overrides[stages[i].ID]; ok {
			stages[i].Temperature = t
		}
	}
	d.Stages = stages
	return d
}

// StageResult is the recovered output of one completed stage.
type StageResult struct {
	Stage   string
	Payload recovery.Payload
}

// StageContext is everything a stage invocation may read.
type StageContext struct {
	RunID    string
	Pipeline string

	// Inputs are the request inputs, shared by every stage of a run.
	Inputs map[string]any

	// Previous is set for ContextPrevious stages after the first.
	Previous *StageResult

	// Prior holds every earlier result for ContextAccumulated stages.
	Prior []StageResult
}

// StageRunner executes a single stage and returns its raw text output.
// Any error is fatal to the run; retries are the runner's business.
type StageRunner interface {
	Run(ctx context.Context, stage Stage, sc StageContext) (string, error)
}

// RunnerFunc adapts a function to StageRunner.
type RunnerFunc func(ctx context.Context, stage Stage, sc StageContext) (string, error)

// Run implements StageRunner.
func (f RunnerFunc) Run(ctx context.Context, stage Stage, sc StageContext) (string, error) {
	return f(ctx, stage, sc)
}

func buildContext(stage Stage, inputs map[string]any, results []StageResult) StageContext {
	sc := StageContext{Inputs: inputs}
	if len(results) == 0 {
		return sc
	}

	switch stage.Context {
	case ContextPrevious:
		prev := results[len(results)-1]
		sc.Previous = &prev
	case ContextAccumulated:
		sc.Prior = append([]StageResult(nil), results...)
	}
	return sc
}
