// Package pipeline drives staged LLM pipelines and turns their progress
// into an ordered event stream.
//
// A run emits a start status, then for every stage a task_complete event
// followed by the status of the next stage, and finally one complete event.
// The first stage failure emits a single error event and ends the run.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// Sink receives events in order. Send must not return before the frame
// has been handed to the consumer; an error stops the run.
type Sink interface {
	Send(e events.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e events.Event) error

// Send implements Sink.
func (f SinkFunc) Send(e events.Event) error { return f(e) }

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Send implements Sink.
func (r *Recorder) Send(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Orchestrator executes pipeline definitions with a StageRunner.
// It holds no per-run state and may serve concurrent runs.
type Orchestrator struct {
	runner StageRunner
	log    *logger.Logger
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator around runner.
func NewOrchestrator(runner StageRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get().With("component", "orchestrator")
	}
	return o
}

// Run executes def against inputs, sending events to sink as they happen.
// The returned Run is never nil once the definition is valid; the error is
// the run's failure cause, if any.
func (o *Orchestrator) Run(ctx context.Context, def Definition, inputs map[string]any, sink Sink) (*Run, error) {
	if err := def.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid pipeline %q", def.Name)
	}

	run := newRun(def.Name, inputs)
	run.Started = o.now()
	ctx = errors.WithRunID(ctx, run.ID.String())
	log := o.log.With("run_id", run.ID.String(), "pipeline", def.Name)

	metrics.PipelinesActive.WithLabelValues(def.Name).Inc()
	defer func() {
		metrics.PipelinesActive.WithLabelValues(def.Name).Dec()
		metrics.RecordPipelineRun(def.Name, outcome(run), run.Duration())
	}()

	log.Infow("Pipeline run started", "stages", len(def.Stages))

	if err := sink.Send(events.NewStatus(def.StartMessage)); err != nil {
		return o.abandon(run, "", err, log)
	}

	last := len(def.Stages) - 1
	for i, stage := range def.Stages {
		if err := ctx.Err(); err != nil {
			return o.interrupt(ctx, run, stage, sink, err, log)
		}
		if err := run.advance(i); err != nil {
			return o.abandon(run, stage.ID, err, log)
		}

		payload, err := o.runStage(ctx, run, stage, log)
		if err != nil {
			if ctx.Err() != nil {
				return o.interrupt(ctx, run, stage, sink, err, log)
			}
			return o.failStage(ctx, run, stage, sink, err, log)
		}

		run.record(stage.ID, payload)
		if err := sink.Send(events.NewTaskComplete(stage.ID, payload)); err != nil {
			return o.abandon(run, stage.ID, err, log)
		}

		if i < last {
			if err := sink.Send(events.NewStatus(def.Stages[i+1].Status)); err != nil {
				return o.abandon(run, stage.ID, err, log)
			}
		}
	}

	if err := sink.Send(events.NewComplete(def.CompleteMessage)); err != nil {
		return o.abandon(run, "", err, log)
	}
	if err := run.complete(o.now()); err != nil {
		return o.abandon(run, "", err, log)
	}

	log.Infow("Pipeline run completed", "duration", run.Duration().String())
	return run, nil
}

func (o *Orchestrator) runStage(ctx context.Context, run *Run, stage Stage, log *logger.Logger) (recovery.Payload, error) {
	start := o.now()
	slog := log.With("stage", stage.ID)
	slog.Debugw("Stage started", "context", stage.Context)

	sc := buildContext(stage, run.Inputs, run.Results)
	sc.RunID = run.ID.String()
	sc.Pipeline = run.Pipeline

	raw, err := o.runner.Run(ctx, stage, sc)
	if err != nil {
		metrics.RecordStage(run.Pipeline, stage.ID, "invocation_error", o.now().Sub(start))
		return nil, errors.Newf("%w: stage %s: %w", errors.ErrStageInvocation, stage.ID, err)
	}

	payload, strategy, err := recovery.RecoverOrSalvage(raw)
	if err != nil {
		metrics.RecordRecovery(recoveryFailure(err))
		metrics.RecordStage(run.Pipeline, stage.ID, "recovery_error", o.now().Sub(start))
		slog.Debugw("Unrecoverable stage output", "raw_length", len(raw))
		return nil, errors.Newf("%w: stage %s: %w", errors.ErrStageRecovery, stage.ID, err)
	}

	metrics.RecordRecovery(string(strategy))
	metrics.RecordStage(run.Pipeline, stage.ID, "success", o.now().Sub(start))
	slog.Debugw("Stage completed", "strategy", strategy, "keys", len(payload))
	return payload, nil
}

// failStage ends the run with exactly one error event.
func (o *Orchestrator) failStage(ctx context.Context, run *Run, stage Stage, sink Sink, cause error, log *logger.Logger) (*Run, error) {
	run.fail(stage.ID, cause, o.now())
	log.ErrorWithContext(ctx, cause, map[string]string{
		"pipeline": run.Pipeline,
		"stage":    stage.ID,
	})

	if err := sink.Send(events.NewError(stage.ErrorMessage())); err != nil {
		log.Warnw("Failed to deliver error event", "stage", stage.ID, "error", err)
	}
	return run, run.Err
}

// interrupt handles a done context. A deadline still has a listening
// consumer and gets the stage's error event; a cancellation does not.
func (o *Orchestrator) interrupt(ctx context.Context, run *Run, stage Stage, sink Sink, cause error, log *logger.Logger) (*Run, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return o.failStage(ctx, run, stage, sink, errors.Wrapf(errors.ErrTimeout, "stage %s: %v", stage.ID, cause), log)
	}

	run.fail(stage.ID, errors.Wrapf(errors.ErrCanceled, "stage %s: %v", stage.ID, cause), o.now())
	log.Infow("Pipeline run canceled", "stage", stage.ID, "completed_stages", len(run.Results))
	return run, run.Err
}

// abandon ends the run after the sink stopped accepting events.
func (o *Orchestrator) abandon(run *Run, stage string, cause error, log *logger.Logger) (*Run, error) {
	run.fail(stage, errors.Wrap(cause, "event delivery failed"), o.now())
	log.Warnw("Pipeline run abandoned", "stage", stage, "error", cause)
	return run, run.Err
}

func outcome(run *Run) string {
	switch {
	case run.State == StateCompleted:
		return "completed"
	case errors.Is(run.Err, errors.ErrCanceled):
		return "canceled"
	default:
		return "failed"
	}
}

func recoveryFailure(err error) string {
	if errors.Is(err, recovery.ErrNoJSONFound) {
		return "no_json"
	}
	return "malformed"
}
