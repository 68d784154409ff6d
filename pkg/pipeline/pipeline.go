// Package pipeline executes a queue of operations as one chained run against
// a processing service. The output of each step is the input of the next; the
// first failure aborts the run and nothing is returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/internal/telemetry"
	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/types"
)

// ErrEmptyQueue is returned when a run is started with no operations.
var ErrEmptyQueue = errors.New("no operations to run")

// StepError identifies the step that aborted a run.
type StepError struct {
	Index int
	Kind  types.Kind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Status is the state of a run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ProgressFunc is called after every successful step with the number of
// completed steps and the total.
type ProgressFunc func(completed, total int)

// Run is the transient state of one execution. It is owned by the engine for
// the duration of the run.
type Run struct {
	Snapshot     []types.Operation
	CurrentIndex int
	Working      types.Artifact
	Progress     float64
	Status       Status
}

func newRun(ops []types.Operation, start types.Artifact) *Run {
	snapshot := make([]types.Operation, len(ops))
	for i, op := range ops {
		snapshot[i] = types.Operation{ID: op.ID, Kind: op.Kind, Params: op.Params.Clone()}
	}
	return &Run{Snapshot: snapshot, Working: start, Status: StatusIdle}
}

// Engine runs operation queues.
type Engine struct {
	service client.ProcessingService
	metrics *telemetry.Metrics
	logger  *bolt.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the instruments the engine records to.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(l *bolt.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine that sends every step to service.
func NewEngine(service client.ProcessingService, opts ...Option) *Engine {
	e := &Engine{service: service, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = telemetry.New(telemetry.Config{})
	}
	e.logger = logging.OrDefault(e.logger)
	return e
}

// Run applies ops in order starting from start and returns the final
// artifact. On failure it returns a *StepError and the zero Artifact; the
// caller's start artifact is never modified.
func (e *Engine) Run(ctx context.Context, ops []types.Operation, start types.Artifact, progress ProgressFunc) (types.Artifact, error) {
	if len(ops) == 0 {
		return types.Artifact{}, ErrEmptyQueue
	}

	run := newRun(ops, start)
	total := len(run.Snapshot)

	ctx, span := e.metrics.Tracer().Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int("pipeline.steps", total)))
	defer span.End()

	began := e.now()
	run.Status = StatusRunning
	logging.With(e.logger.Info()).
		Add(logging.Int("steps", total)).
		Msg("batch run started")

	for run.CurrentIndex = 0; run.CurrentIndex < total; run.CurrentIndex++ {
		if err := e.step(ctx, run); err != nil {
			run.Status = StatusFailed
			run.Working = types.Artifact{}

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.metrics.RecordRun(ctx, total, false, e.now().Sub(began))
			logging.With(e.logger.Warn()).
				Add(logging.Step(run.CurrentIndex, total), logging.ErrorField(err)).
				Msg("batch run aborted")
			return types.Artifact{}, err
		}

		run.Progress = float64(run.CurrentIndex+1) / float64(total)
		if progress != nil {
			progress(run.CurrentIndex+1, total)
		}
	}

	run.Status = StatusSucceeded
	span.SetStatus(codes.Ok, "")
	e.metrics.RecordRun(ctx, total, true, e.now().Sub(began))
	logging.With(e.logger.Info()).
		Add(logging.Int("steps", total), logging.Bytes(len(run.Working.Data)), logging.Duration(e.now().Sub(began))).
		Msg("batch run completed")
	return run.Working, nil
}

// step sends the current operation with the working image and threads the
// result into the run.
func (e *Engine) step(ctx context.Context, run *Run) error {
	i := run.CurrentIndex
	op := run.Snapshot[i]
	total := len(run.Snapshot)

	ctx, span := e.metrics.Tracer().Start(ctx, "pipeline.step",
		trace.WithAttributes(
			attribute.Int("step.index", i),
			attribute.String("operation.kind", string(op.Kind)),
		))
	defer span.End()

	began := e.now()
	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordStep(ctx, string(op.Kind), false, e.now().Sub(began))
		return &StepError{Index: i, Kind: op.Kind, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	out, err := e.service.Process(ctx, op.Kind, op.Params, run.Working)
	if err != nil {
		return fail(err)
	}
	if out.Empty() {
		return fail(client.DecodeError(op.Kind.Endpoint(), errors.New("empty response")))
	}

	run.Working = out
	e.metrics.RecordStep(ctx, string(op.Kind), true, e.now().Sub(began))
	logging.With(e.logger.Debug()).
		Add(logging.Step(i, total), logging.Kind(string(op.Kind)), logging.OperationID(op.ID)).
		Msg("batch step completed")
	return nil
}
