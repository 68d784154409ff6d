// Package editor ties the crop selection, operation queue, batch engine and
// history together around a single current preview.
//
// Operations reach the processing service along two paths. In normal mode
// each operation is applied immediately and recorded as its own history
// entry. In batch mode operations are queued and RunBatch applies the whole
// queue as one chained run that either commits a single history entry or
// leaves everything as it was.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/internal/telemetry"
	"github.com/menta2k/image-editor/pkg/artifact"
	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/detection"
	"github.com/menta2k/image-editor/pkg/history"
	"github.com/menta2k/image-editor/pkg/pipeline"
	"github.com/menta2k/image-editor/pkg/queue"
	"github.com/menta2k/image-editor/pkg/selection"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/viewport"
)

var (
	// ErrNoImage is returned for any operation that needs a loaded image.
	ErrNoImage = errors.New("no image loaded")

	// ErrBusy is returned when an apply or batch run is already in flight.
	ErrBusy = errors.New("another operation is in progress")

	// ErrNoDetector is returned by SuggestSelection when no vision backend
	// is configured.
	ErrNoDetector = errors.New("subject detection is not configured")
)

// Config holds the editor's tunables.
type Config struct {
	HistoryCapacity int
	Selection       selection.Config
}

// DefaultConfig returns the standard editor configuration.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity: history.DefaultCapacity,
		Selection:       selection.DefaultConfig(),
	}
}

// Result describes what Apply did with an operation.
type Result struct {
	// Queued is set when the operation was added to the batch queue instead
	// of being applied.
	Queued      bool
	OperationID string

	// Entry is the history entry of an applied operation.
	Entry history.Entry
}

// Editor is one editing session. It is safe for concurrent use, but only one
// apply or batch run may be in flight at a time.
type Editor struct {
	service   client.Service
	store     artifact.Store
	engine    *pipeline.Engine
	history   *history.Log
	queue     *queue.Queue
	selection *selection.Machine
	detector  *detection.Detector
	metrics   *telemetry.Metrics
	logger    *bolt.Logger

	mu        sync.Mutex
	busy      bool
	running   bool // a batch run is in flight
	loaded    bool
	source    artifact.Handle
	current   artifact.Handle
	info      types.ImageInfo
	geometry  types.ImageGeometry
	batchMode bool
}

// Option configures an Editor.
type Option func(*Editor)

// WithDetector enables SuggestSelection.
func WithDetector(d *detection.Detector) Option {
	return func(e *Editor) { e.detector = d }
}

// WithMetrics sets the telemetry instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Editor) { e.metrics = m }
}

// WithLogger sets the editor logger.
func WithLogger(l *bolt.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// New creates an editor that processes images through service and keeps
// results in store.
func New(cfg Config, service client.Service, store artifact.Store, opts ...Option) (*Editor, error) {
	if service == nil {
		return nil, fmt.Errorf("processing service is required")
	}
	if store == nil {
		store = artifact.NewMemoryStore()
	}

	e := &Editor{
		service: service,
		store:   store,
		history: history.New(cfg.HistoryCapacity),
		queue:   queue.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger)
	if e.metrics == nil {
		e.metrics = telemetry.New(telemetry.Config{})
	}

	m, err := selection.New(cfg.Selection, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create selection: %w", err)
	}
	e.selection = m
	e.engine = pipeline.NewEngine(service, pipeline.WithMetrics(e.metrics), pipeline.WithLogger(e.logger))
	return e, nil
}

// Close releases the selection machine and the artifact store.
func (e *Editor) Close() error {
	e.selection.Stop()
	return e.store.Close()
}

// Load makes img the source and current preview. History is cleared, crop
// mode is left and the geometry is reset to an unscaled view.
func (e *Editor) Load(ctx context.Context, img types.Artifact) (types.ImageInfo, error) {
	if img.Empty() {
		return types.ImageInfo{}, ErrNoImage
	}
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return types.ImageInfo{}, ErrBusy
	}
	e.busy = true
	e.mu.Unlock()
	defer e.release()

	info, err := e.service.Probe(ctx, img)
	if err != nil {
		return types.ImageInfo{}, fmt.Errorf("failed to read image: %w", err)
	}
	h, err := e.store.Put(ctx, img)
	if err != nil {
		return types.ImageInfo{}, fmt.Errorf("failed to store image: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := []artifact.Handle{e.source, e.current}
	for _, entry := range e.history.Clear() {
		old = append(old, entry.Result)
	}
	e.selection.Cancel()

	e.loaded = true
	e.source, e.current = h, h
	e.info = info
	e.geometry = viewport.FitGeometry(info.Width, info.Height, float64(info.Width), float64(info.Height))
	e.prune(ctx, old...)

	logging.With(e.logger.Info()).
		Add(logging.Int("width", info.Width), logging.Int("height", info.Height), logging.Str("format", info.Format)).
		Msg("image loaded")
	return info, nil
}

// HasImage reports whether a source image is loaded.
func (e *Editor) HasImage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Current returns the current preview.
func (e *Editor) Current(ctx context.Context) (types.Artifact, error) {
	e.mu.Lock()
	h, loaded := e.current, e.loaded
	e.mu.Unlock()

	if !loaded {
		return types.Artifact{}, ErrNoImage
	}
	return e.store.Get(ctx, h)
}

// Info returns the probed facts of the current preview.
func (e *Editor) Info() (types.ImageInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return types.ImageInfo{}, ErrNoImage
	}
	return e.info, nil
}

// SetGeometry records how the current preview is laid out on screen. The
// natural size must match the current image.
func (e *Editor) SetGeometry(g types.ImageGeometry) error {
	if err := g.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ErrNoImage
	}
	if g.NaturalWidth != e.info.Width || g.NaturalHeight != e.info.Height {
		return fmt.Errorf("geometry is for a %dx%d image, current image is %dx%d",
			g.NaturalWidth, g.NaturalHeight, e.info.Width, e.info.Height)
	}
	e.geometry = g
	return nil
}

// FitToOverlay lays the current image out inside an overlay of the given
// size and returns the resulting geometry.
func (e *Editor) FitToOverlay(width, height float64) (types.ImageGeometry, error) {
	e.mu.Lock()
	info, loaded := e.info, e.loaded
	e.mu.Unlock()
	if !loaded {
		return types.ImageGeometry{}, ErrNoImage
	}

	g := viewport.FitGeometry(info.Width, info.Height, width, height)
	if err := e.SetGeometry(g); err != nil {
		return types.ImageGeometry{}, err
	}
	return g, nil
}

// Geometry returns the current layout.
func (e *Editor) Geometry() types.ImageGeometry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.geometry
}

// BatchMode reports whether operations are being queued.
func (e *Editor) BatchMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchMode
}

// SetBatchMode switches batch mode. Turning it off clears the queue; the
// discarded operations are returned so the caller can tell the user.
func (e *Editor) SetBatchMode(on bool) []types.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.batchMode = on
	if on {
		return nil
	}
	discarded := e.queue.Clear()
	if len(discarded) > 0 {
		logging.With(e.logger.Info()).
			Add(logging.Int("discarded", len(discarded))).
			Msg("batch mode disabled, queue cleared")
	}
	return discarded
}

// Enqueue adds an operation to the batch queue. It fails with ErrBusy while
// the queue is being run.
func (e *Editor) Enqueue(kind types.Kind, params types.Params) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return "", ErrNoImage
	}
	if e.running {
		return "", ErrBusy
	}
	id, err := e.queue.Enqueue(kind, params)
	if err != nil {
		return "", err
	}
	logging.With(e.logger.Debug()).
		Add(logging.OperationID(id), logging.Kind(string(kind)), logging.Int("queued", e.queue.Len())).
		Msg("operation queued")
	return id, nil
}

// RemoveOperation drops a queued operation.
func (e *Editor) RemoveOperation(id string) bool {
	return e.queue.Remove(id)
}

// ClearQueue empties the queue and returns what was in it.
func (e *Editor) ClearQueue() []types.Operation {
	return e.queue.Clear()
}

// Operations returns the queued operations in order.
func (e *Editor) Operations() []types.Operation {
	return e.queue.List()
}

// Apply applies an operation to the current preview, or queues it in batch
// mode. A failed apply leaves the preview and history untouched.
func (e *Editor) Apply(ctx context.Context, kind types.Kind, params types.Params) (Result, error) {
	if err := kind.Validate(params); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return Result{}, ErrNoImage
	}
	if e.batchMode {
		e.mu.Unlock()
		id, err := e.Enqueue(kind, params)
		if err != nil {
			return Result{}, err
		}
		return Result{Queued: true, OperationID: id}, nil
	}
	if e.busy {
		e.mu.Unlock()
		return Result{}, ErrBusy
	}
	e.busy = true
	start := e.current
	e.mu.Unlock()
	defer e.release()

	input, err := e.store.Get(ctx, start)
	if err != nil {
		return Result{}, err
	}

	began := time.Now()
	out, err := e.service.Process(ctx, kind, params, input)
	if err != nil {
		e.metrics.RecordApplied(ctx, string(kind), false)
		logging.With(e.logger.Warn()).
			Add(logging.Kind(string(kind)), logging.ErrorField(err)).
			Msg("operation failed")
		return Result{}, err
	}
	e.metrics.RecordApplied(ctx, string(kind), true)

	entry, err := e.commit(ctx, out, history.Entry{Kind: kind, Params: params})
	if err != nil {
		return Result{}, err
	}

	logging.With(e.logger.Info()).
		Add(logging.Kind(string(kind)), logging.Bytes(len(out.Data)), logging.Duration(time.Since(began))).
		Msg("operation applied")
	return Result{Entry: entry}, nil
}

// RunBatch applies the queue as one chained run. On success the result
// becomes the current preview, one batch entry is recorded, the queue is
// cleared and batch mode is left. On failure nothing changes and the queue
// is kept so it can be edited and retried.
func (e *Editor) RunBatch(ctx context.Context, progress pipeline.ProgressFunc) (history.Entry, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return history.Entry{}, ErrNoImage
	}
	if e.busy {
		e.mu.Unlock()
		return history.Entry{}, ErrBusy
	}
	ops := e.queue.List()
	if len(ops) == 0 {
		e.mu.Unlock()
		return history.Entry{}, pipeline.ErrEmptyQueue
	}
	e.busy = true
	e.running = true
	start := e.current
	e.mu.Unlock()
	defer e.release()

	input, err := e.store.Get(ctx, start)
	if err != nil {
		return history.Entry{}, err
	}

	out, err := e.engine.Run(ctx, ops, input, progress)
	if err != nil {
		return history.Entry{}, err
	}

	entry, err := e.commit(ctx, out, history.Entry{Kind: types.KindBatch, Params: history.BatchParams(ops)})
	if err != nil {
		return history.Entry{}, err
	}

	e.mu.Lock()
	e.queue.Clear()
	e.batchMode = false
	e.mu.Unlock()
	return entry, nil
}

// commit stores a successful result, records it and makes it current.
func (e *Editor) commit(ctx context.Context, out types.Artifact, entry history.Entry) (history.Entry, error) {
	info, err := e.service.Probe(ctx, out)
	if err != nil {
		return history.Entry{}, err
	}
	h, err := e.store.Put(ctx, out)
	if err != nil {
		return history.Entry{}, fmt.Errorf("failed to store result: %w", err)
	}
	entry.Result = h

	e.mu.Lock()
	defer e.mu.Unlock()

	recorded, evicted := e.history.Record(entry)
	prev := e.current
	e.current = h
	e.setInfo(info)

	old := []artifact.Handle{prev}
	for _, ev := range evicted {
		old = append(old, ev.Result)
	}
	e.prune(ctx, old...)
	return recorded, nil
}

// History returns the recorded entries, newest first.
func (e *Editor) History() []history.Entry {
	return e.history.List()
}

// Restore makes a history entry's result the current preview. History
// itself is not changed.
func (e *Editor) Restore(ctx context.Context, id string) (types.Artifact, error) {
	h, err := e.history.Restore(id)
	if err != nil {
		return types.Artifact{}, err
	}
	img, err := e.store.Get(ctx, h)
	if err != nil {
		return types.Artifact{}, err
	}
	info, err := e.service.Probe(ctx, img)
	if err != nil {
		return types.Artifact{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return types.Artifact{}, ErrBusy
	}
	prev := e.current
	e.current = h
	e.setInfo(info)
	e.selection.Cancel()
	e.prune(ctx, prev)
	return img, nil
}

// Reset goes back to the original image, clears history and leaves crop
// mode.
func (e *Editor) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return ErrNoImage
	}
	if e.busy {
		return ErrBusy
	}

	img, err := e.store.Get(ctx, e.source)
	if err != nil {
		return err
	}
	info, err := e.service.Probe(ctx, img)
	if err != nil {
		return err
	}

	old := []artifact.Handle{e.current}
	for _, entry := range e.history.Clear() {
		old = append(old, entry.Result)
	}
	e.selection.Cancel()
	e.current = e.source
	e.setInfo(info)
	e.prune(ctx, old...)

	e.logger.Info().Msg("editor reset to original image")
	return nil
}

func (e *Editor) release() {
	e.mu.Lock()
	e.busy = false
	e.running = false
	e.mu.Unlock()
}

// setInfo updates the probed info, refitting the geometry when the size
// changed. Callers hold e.mu.
func (e *Editor) setInfo(info types.ImageInfo) {
	if info.Width != e.info.Width || info.Height != e.info.Height {
		ow := e.geometry.DisplayWidth + 2*e.geometry.OffsetX
		oh := e.geometry.DisplayHeight + 2*e.geometry.OffsetY
		if ow <= 0 || oh <= 0 {
			ow, oh = float64(info.Width), float64(info.Height)
		}
		e.geometry = viewport.FitGeometry(info.Width, info.Height, ow, oh)
	}
	e.info = info
}

// prune deletes stored artifacts no longer reachable from the source, the
// current preview or history. Callers hold e.mu.
func (e *Editor) prune(ctx context.Context, handles ...artifact.Handle) {
	for _, h := range handles {
		if h == "" || h == e.source || h == e.current || e.history.References(h) {
			continue
		}
		if err := e.store.Delete(ctx, h); err != nil && !errors.Is(err, artifact.ErrNotFound) {
			logging.With(e.logger.Warn()).
				Add(logging.Str("handle", h.String()), logging.ErrorField(err)).
				Msg("failed to release artifact")
		}
	}
}
