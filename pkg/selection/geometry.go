package selection

import (
	"math"

	"github.com/menta2k/image-editor/pkg/types"
)

// Point is an overlay-local pointer position.
type Point struct {
	X float64
	Y float64
}

// Handle identifies a corner resize handle.
type Handle string

const (
	HandleNone Handle = ""
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
)

// bounds is the overlay extent a selection must stay within.
type bounds struct {
	width  float64
	height float64
}

func (b bounds) clampPoint(p Point) Point {
	return Point{X: clamp(p.X, 0, b.width), Y: clamp(p.Y, 0, b.height)}
}

// fit clamps origin and size jointly so the rect lies inside the overlay.
func (b bounds) fit(r types.SelectionRect) types.SelectionRect {
	r.X = math.Max(0, math.Min(b.width-r.Width, r.X))
	r.Y = math.Max(0, math.Min(b.height-r.Height, r.Y))
	r.Width = math.Min(r.Width, b.width-r.X)
	r.Height = math.Min(r.Height, b.height-r.Y)
	return r
}

// hitHandle checks the corner hit zones in priority order se, nw, ne, sw.
func hitHandle(r types.SelectionRect, p Point, size float64) Handle {
	near := func(cx, cy float64) bool {
		return math.Abs(p.X-cx) <= size && math.Abs(p.Y-cy) <= size
	}
	switch {
	case near(r.Right(), r.Bottom()):
		return HandleSE
	case near(r.X, r.Y):
		return HandleNW
	case near(r.Right(), r.Y):
		return HandleNE
	case near(r.X, r.Bottom()):
		return HandleSW
	}
	return HandleNone
}

// centred returns a square of the given side centred in the overlay,
// shrunk when the overlay is smaller.
func centred(b bounds, side float64) types.SelectionRect {
	w := math.Min(side, b.width)
	h := math.Min(side, b.height)
	return types.SelectionRect{X: (b.width - w) / 2, Y: (b.height - h) / 2, Width: w, Height: h}
}

// spanRect is the drag-to-create rect between anchor and pointer. The floor
// applies to size only; position is settled by the overlay clamp.
func spanRect(anchor, p Point, b bounds, floor float64) types.SelectionRect {
	p = b.clampPoint(p)
	return b.fit(types.SelectionRect{
		X:      math.Min(anchor.X, p.X),
		Y:      math.Min(anchor.Y, p.Y),
		Width:  math.Max(floor, math.Abs(p.X-anchor.X)),
		Height: math.Max(floor, math.Abs(p.Y-anchor.Y)),
	})
}

// translate moves the rect so its origin sits at p minus the grab offset.
func translate(r types.SelectionRect, grab, p Point, b bounds) types.SelectionRect {
	r.X = p.X - grab.X
	r.Y = p.Y - grab.Y
	return b.fit(r)
}

// resize drags one corner. The edges not controlled by the handle stay put
// until the overlay clamp forces them to move.
func resize(r types.SelectionRect, h Handle, p Point, b bounds, floor float64) types.SelectionRect {
	p = b.clampPoint(p)
	right, bottom := r.Right(), r.Bottom()

	switch h {
	case HandleSE:
		r.Width = math.Max(floor, p.X-r.X)
		r.Height = math.Max(floor, p.Y-r.Y)
	case HandleNW:
		r.Width = math.Max(floor, right-p.X)
		r.Height = math.Max(floor, bottom-p.Y)
		r.X = right - r.Width
		r.Y = bottom - r.Height
	case HandleNE:
		r.Width = math.Max(floor, p.X-r.X)
		r.Height = math.Max(floor, bottom-p.Y)
		r.Y = bottom - r.Height
	case HandleSW:
		r.Width = math.Max(floor, right-p.X)
		r.Height = math.Max(floor, p.Y-r.Y)
		r.X = right - r.Width
	}
	return b.fit(r)
}

// settle applies the end-of-drag floor and clamp.
func settle(r types.SelectionRect, b bounds, floor float64) types.SelectionRect {
	r.Width = math.Max(floor, r.Width)
	r.Height = math.Max(floor, r.Height)
	return b.fit(r)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
