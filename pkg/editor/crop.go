package editor

import (
	"context"
	"fmt"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/pkg/detection"
	"github.com/menta2k/image-editor/pkg/selection"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/viewport"
)

// BeginCrop enters crop mode with the default centred selection.
func (e *Editor) BeginCrop() (selection.Snapshot, error) {
	g, err := e.cropGeometry()
	if err != nil {
		return selection.Snapshot{}, err
	}
	return e.selection.Begin(g.OverlaySize())
}

// BeginCropWith enters crop mode with rect, in overlay coordinates, as the
// initial selection.
func (e *Editor) BeginCropWith(rect types.SelectionRect) (selection.Snapshot, error) {
	g, err := e.cropGeometry()
	if err != nil {
		return selection.Snapshot{}, err
	}
	w, h := g.OverlaySize()
	return e.selection.BeginWith(w, h, rect)
}

// PointerDown forwards a pointer press to the selection.
func (e *Editor) PointerDown(x, y float64) selection.Snapshot {
	return e.selection.PointerDown(selection.Point{X: x, Y: y})
}

// PointerMove forwards a pointer move to the selection.
func (e *Editor) PointerMove(x, y float64) selection.Snapshot {
	return e.selection.PointerMove(selection.Point{X: x, Y: y})
}

// PointerUp forwards a pointer release to the selection.
func (e *Editor) PointerUp() selection.Snapshot {
	return e.selection.PointerUp()
}

// CancelCrop leaves crop mode without applying anything.
func (e *Editor) CancelCrop() selection.Snapshot {
	return e.selection.Cancel()
}

// Selection returns the current crop interaction state.
func (e *Editor) Selection() selection.Snapshot {
	return e.selection.Snapshot()
}

// CropBox maps an overlay-space selection to image pixels using the current
// geometry.
func (e *Editor) CropBox(rect types.SelectionRect) (types.CropBox, error) {
	g, err := e.cropGeometry()
	if err != nil {
		return types.CropBox{}, err
	}
	return viewport.MapDisplayRectToImageSpace(rect, g), nil
}

// CommitCrop ends crop mode and crops the current preview to the selection.
// In batch mode the crop is queued instead.
func (e *Editor) CommitCrop(ctx context.Context) (Result, error) {
	if !e.HasImage() {
		return Result{}, ErrNoImage
	}
	rect, err := e.selection.Commit()
	if err != nil {
		return Result{}, err
	}
	box, err := e.CropBox(rect)
	if err != nil {
		return Result{}, err
	}

	logging.With(e.logger.Debug()).
		Add(logging.Int("left", box.Left), logging.Int("top", box.Top),
			logging.Int("right", box.Right), logging.Int("bottom", box.Bottom)).
		Msg("crop committed")
	return e.Apply(ctx, types.KindCrop, box.Params())
}

// ManualCrop crops to a box given directly in image pixels. The box is not
// clamped to the image.
func (e *Editor) ManualCrop(ctx context.Context, left, top, width, height int) (Result, error) {
	if width <= 0 || height <= 0 {
		return Result{}, fmt.Errorf("crop size must be positive, got %dx%d", width, height)
	}
	return e.Apply(ctx, types.KindCrop, viewport.ManualCropBox(left, top, width, height).Params())
}

// SuggestSelection asks the vision backend for the subject of the current
// preview and enters crop mode with a selection around it. When nothing is
// found the default selection is used.
func (e *Editor) SuggestSelection(ctx context.Context) (selection.Snapshot, detection.Suggestion, error) {
	if e.detector == nil {
		return selection.Snapshot{}, detection.Suggestion{}, ErrNoDetector
	}
	g, err := e.cropGeometry()
	if err != nil {
		return selection.Snapshot{}, detection.Suggestion{}, err
	}
	img, err := e.Current(ctx)
	if err != nil {
		return selection.Snapshot{}, detection.Suggestion{}, err
	}

	suggestion, err := e.detector.Suggest(ctx, img, g.NaturalWidth, g.NaturalHeight)
	if err != nil {
		return selection.Snapshot{}, detection.Suggestion{}, err
	}
	if !suggestion.Found() {
		snap, err := e.selection.Begin(g.OverlaySize())
		return snap, suggestion, err
	}

	rect, err := viewport.ImageRectToDisplay(suggestion.Box, g)
	if err != nil {
		return selection.Snapshot{}, detection.Suggestion{}, err
	}
	logging.With(e.logger.Info()).
		Add(logging.Str("label", suggestion.Label)).
		Msg("subject suggested")
	w, h := g.OverlaySize()
	snap, err := e.selection.BeginWith(w, h, rect)
	return snap, suggestion, err
}

func (e *Editor) cropGeometry() (types.ImageGeometry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return types.ImageGeometry{}, ErrNoImage
	}
	if err := e.geometry.Validate(); err != nil {
		return types.ImageGeometry{}, err
	}
	return e.geometry, nil
}
