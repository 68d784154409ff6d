// Package selection implements the pointer-driven crop selection: a small
// statechart (inactive, idle, creating, moving, resizing) whose context holds
// the selection rectangle in overlay-local display space.
package selection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/felixgeelhaar/statekit"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/pkg/types"
)

// Mode is the interaction state of the selection machine.
type Mode string

const (
	// ModeInactive means crop-interaction mode is off and no selection exists.
	ModeInactive Mode = "inactive"
	ModeIdle     Mode = "idle"
	ModeCreating Mode = "creating"
	ModeMoving   Mode = "moving"
	ModeResizing Mode = "resizing"
)

var (
	// ErrInactive is returned by Commit when crop mode is off.
	ErrInactive = errors.New("selection: crop mode not active")
	// ErrInvalidOverlay is returned by Begin for a non-positive overlay size.
	ErrInvalidOverlay = errors.New("selection: overlay size must be positive")
)

const (
	evBegin       statekit.EventType = "BEGIN"
	evGrabHandle  statekit.EventType = "GRAB_HANDLE"
	evGrabBody    statekit.EventType = "GRAB_BODY"
	evStartCreate statekit.EventType = "START_CREATE"
	evMove        statekit.EventType = "MOVE"
	evRelease     statekit.EventType = "RELEASE"
	evCancel      statekit.EventType = "CANCEL"
	evCommit      statekit.EventType = "COMMIT"
)

// Config holds the interaction constants, in display pixels.
type Config struct {
	MinSize     float64 `json:"min_size" yaml:"min_size"`
	HandleSize  float64 `json:"handle_size" yaml:"handle_size"`
	InitialSize float64 `json:"initial_size" yaml:"initial_size"`
}

// DefaultConfig returns a 50px size floor, 10px handle hit zones and a
// 200px initial selection.
func DefaultConfig() Config {
	return Config{MinSize: 50, HandleSize: 10, InitialSize: 200}
}

// Snapshot is an immutable view of the machine after a transition.
type Snapshot struct {
	Mode   Mode                `json:"mode"`
	Handle Handle              `json:"handle,omitempty"`
	Rect   types.SelectionRect `json:"rect"`

	OverlayWidth  float64 `json:"overlay_width"`
	OverlayHeight float64 `json:"overlay_height"`
}

// Active reports whether crop-interaction mode is on.
func (s Snapshot) Active() bool { return s.Mode != ModeInactive }

// Dragging reports whether a pointer drag is in progress.
func (s Snapshot) Dragging() bool {
	return s.Mode == ModeCreating || s.Mode == ModeMoving || s.Mode == ModeResizing
}

// interaction is the statechart context.
type interaction struct {
	cfg    Config
	bounds bounds
	rect   types.SelectionRect
	handle Handle
	anchor Point
	grab   Point
}

type beginPayload struct {
	bounds bounds
	rect   *types.SelectionRect
}

// Machine is a selection state machine. It is safe for concurrent use.
type Machine struct {
	mu     sync.Mutex
	ctx    *interaction
	interp *statekit.Interpreter[*interaction]
	logger *bolt.Logger
}

// New builds and starts a selection machine in the inactive state.
func New(cfg Config, logger *bolt.Logger) (*Machine, error) {
	if cfg.MinSize < 0 || cfg.HandleSize < 0 || cfg.InitialSize <= 0 {
		return nil, fmt.Errorf("selection: invalid config %+v", cfg)
	}

	machine, err := buildMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build selection machine: %w", err)
	}

	ctx := &interaction{cfg: cfg}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **interaction) {
		*c = ctx
	})
	interp.Start()

	return &Machine{
		ctx:    ctx,
		interp: interp,
		logger: logging.OrDefault(logger),
	}, nil
}

func buildMachine() (*statekit.MachineConfig[*interaction], error) {
	return statekit.NewMachine[*interaction]("selection").
		WithInitial(statekit.StateID(ModeInactive)).
		WithContext(&interaction{}).
		WithAction("seed", seed).
		WithAction("grabHandle", grabHandle).
		WithAction("grabBody", grabBody).
		WithAction("anchor", anchor).
		WithAction("span", span).
		WithAction("translate", translateAction).
		WithAction("resize", resizeAction).
		WithAction("settle", settleAction).
		WithAction("discard", discard).
		State(statekit.StateID(ModeInactive)).
			On(evBegin).Target(statekit.StateID(ModeIdle)).Do("seed").
			Done().
		State(statekit.StateID(ModeIdle)).
			On(evGrabHandle).Target(statekit.StateID(ModeResizing)).Do("grabHandle").
			On(evGrabBody).Target(statekit.StateID(ModeMoving)).Do("grabBody").
			On(evStartCreate).Target(statekit.StateID(ModeCreating)).Do("anchor").
			On(evCancel).Target(statekit.StateID(ModeInactive)).Do("discard").
			On(evCommit).Target(statekit.StateID(ModeInactive)).Do("discard").
			Done().
		State(statekit.StateID(ModeCreating)).
			On(evMove).Target(statekit.StateID(ModeCreating)).Do("span").
			On(evRelease).Target(statekit.StateID(ModeIdle)).Do("settle").
			On(evCancel).Target(statekit.StateID(ModeInactive)).Do("discard").
			Done().
		State(statekit.StateID(ModeMoving)).
			On(evMove).Target(statekit.StateID(ModeMoving)).Do("translate").
			On(evRelease).Target(statekit.StateID(ModeIdle)).Do("settle").
			On(evCancel).Target(statekit.StateID(ModeInactive)).Do("discard").
			Done().
		State(statekit.StateID(ModeResizing)).
			On(evMove).Target(statekit.StateID(ModeResizing)).Do("resize").
			On(evRelease).Target(statekit.StateID(ModeIdle)).Do("settle").
			On(evCancel).Target(statekit.StateID(ModeInactive)).Do("discard").
			Done().
		Build()
}

func seed(c **interaction, ev statekit.Event) {
	ic := *c
	p, ok := ev.Payload.(beginPayload)
	if !ok {
		return
	}
	ic.bounds = p.bounds
	ic.handle, ic.anchor, ic.grab = HandleNone, Point{}, Point{}
	if p.rect != nil {
		ic.rect = settle(*p.rect, p.bounds, ic.cfg.MinSize)
		return
	}
	ic.rect = centred(p.bounds, ic.cfg.InitialSize)
}

func grabHandle(c **interaction, ev statekit.Event) {
	if h, ok := ev.Payload.(Handle); ok {
		(*c).handle = h
	}
}

func grabBody(c **interaction, ev statekit.Event) {
	ic := *c
	if p, ok := ev.Payload.(Point); ok {
		ic.grab = Point{X: p.X - ic.rect.X, Y: p.Y - ic.rect.Y}
	}
}

func anchor(c **interaction, ev statekit.Event) {
	ic := *c
	if p, ok := ev.Payload.(Point); ok {
		ic.anchor = p
		ic.rect = types.SelectionRect{X: p.X, Y: p.Y}
	}
}

func span(c **interaction, ev statekit.Event) {
	ic := *c
	if p, ok := ev.Payload.(Point); ok {
		ic.rect = spanRect(ic.anchor, p, ic.bounds, ic.cfg.MinSize)
	}
}

func translateAction(c **interaction, ev statekit.Event) {
	ic := *c
	if p, ok := ev.Payload.(Point); ok {
		ic.rect = translate(ic.rect, ic.grab, p, ic.bounds)
	}
}

func resizeAction(c **interaction, ev statekit.Event) {
	ic := *c
	if p, ok := ev.Payload.(Point); ok {
		ic.rect = resize(ic.rect, ic.handle, p, ic.bounds, ic.cfg.MinSize)
	}
}

func settleAction(c **interaction, _ statekit.Event) {
	ic := *c
	ic.rect = settle(ic.rect, ic.bounds, ic.cfg.MinSize)
	ic.handle, ic.anchor, ic.grab = HandleNone, Point{}, Point{}
}

func discard(c **interaction, _ statekit.Event) {
	ic := *c
	ic.rect = types.SelectionRect{}
	ic.handle, ic.anchor, ic.grab = HandleNone, Point{}, Point{}
}

// Begin enters crop mode with the initial selection centred on an overlay of
// the given size. An active selection is discarded first.
func (m *Machine) Begin(overlayWidth, overlayHeight float64) (Snapshot, error) {
	return m.begin(overlayWidth, overlayHeight, nil)
}

// BeginWith enters crop mode seeded with rect, floored and clamped to the
// overlay.
func (m *Machine) BeginWith(overlayWidth, overlayHeight float64, rect types.SelectionRect) (Snapshot, error) {
	return m.begin(overlayWidth, overlayHeight, &rect)
}

func (m *Machine) begin(w, h float64, rect *types.SelectionRect) (Snapshot, error) {
	if !(w > 0) || !(h > 0) {
		return Snapshot{}, fmt.Errorf("%w: %gx%g", ErrInvalidOverlay, w, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode() != ModeInactive {
		m.send(evCancel, nil)
	}
	m.send(evBegin, beginPayload{bounds: bounds{width: w, height: h}, rect: rect})

	snap := m.snapshot()
	logging.With(m.logger.Debug()).
		Add(logging.Mode(string(snap.Mode))).
		Add(logging.Int("width", int(snap.Rect.Width)), logging.Int("height", int(snap.Rect.Height))).
		Msg("crop mode started")
	return snap, nil
}

// PointerDown starts a drag: resizing when p is on a corner handle, moving
// when it is inside the selection, creating otherwise. It is ignored outside
// the idle state.
func (m *Machine) PointerDown(p Point) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode() != ModeIdle {
		return m.snapshot()
	}

	if h := hitHandle(m.ctx.rect, p, m.ctx.cfg.HandleSize); h != HandleNone {
		m.send(evGrabHandle, h)
	} else if m.ctx.rect.Contains(p.X, p.Y) {
		m.send(evGrabBody, p)
	} else {
		m.send(evStartCreate, p)
	}
	return m.snapshot()
}

// PointerMove updates the selection for the current drag. It is ignored
// unless a drag is in progress.
func (m *Machine) PointerMove(p Point) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode() {
	case ModeCreating, ModeMoving, ModeResizing:
		m.send(evMove, p)
	}
	return m.snapshot()
}

// PointerUp ends any drag and returns to idle.
func (m *Machine) PointerUp() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode() {
	case ModeCreating, ModeMoving, ModeResizing:
		m.send(evRelease, nil)
	}
	return m.snapshot()
}

// Cancel discards the selection and leaves crop mode. It is a no-op when
// crop mode is already off.
func (m *Machine) Cancel() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode() != ModeInactive {
		m.send(evCancel, nil)
		m.logger.Debug().Msg("crop mode cancelled")
	}
	return m.snapshot()
}

// Commit ends any drag, returns the final selection and leaves crop mode.
func (m *Machine) Commit() (types.SelectionRect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode() {
	case ModeInactive:
		return types.SelectionRect{}, ErrInactive
	case ModeCreating, ModeMoving, ModeResizing:
		m.send(evRelease, nil)
	}

	rect := m.ctx.rect
	m.send(evCommit, nil)
	return rect, nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Stop halts the underlying interpreter.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interp.Stop()
}

func (m *Machine) mode() Mode {
	return Mode(m.interp.State().Value)
}

func (m *Machine) send(t statekit.EventType, payload any) {
	m.interp.Send(statekit.Event{Type: t, Payload: payload})
}

func (m *Machine) snapshot() Snapshot {
	snap := Snapshot{
		Mode:          m.mode(),
		Rect:          m.ctx.rect,
		OverlayWidth:  m.ctx.bounds.width,
		OverlayHeight: m.ctx.bounds.height,
	}
	if snap.Mode == ModeResizing {
		snap.Handle = m.ctx.handle
	}
	return snap
}
