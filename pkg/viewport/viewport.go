// Package viewport converts between display space (the scaled preview inside
// the interactive overlay) and image space (pixels of the original raster).
package viewport

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/image-editor/pkg/types"
)

// MapDisplayRectToImageSpace maps an overlay-local selection to a crop box on
// the original raster. The result always satisfies
// 0 <= Left < Right <= NaturalWidth and 0 <= Top < Bottom <= NaturalHeight;
// out-of-range or degenerate input is clamped, never rejected.
//
// The geometry must satisfy types.ImageGeometry.Validate.
func MapDisplayRectToImageSpace(rect types.SelectionRect, g types.ImageGeometry) types.CropBox {
	sx, sy := g.ScaleX(), g.ScaleY()

	// Coordinates relative to the image element, not the overlay
	relX := rect.X - g.OffsetX
	relY := rect.Y - g.OffsetY

	left := clampInt(roundPixel(relX*sx), 0, g.NaturalWidth-1)
	top := clampInt(roundPixel(relY*sy), 0, g.NaturalHeight-1)
	right := clampInt(roundPixel((relX+rect.Width)*sx), left+1, g.NaturalWidth)
	bottom := clampInt(roundPixel((relY+rect.Height)*sy), top+1, g.NaturalHeight)

	return types.CropBox{Left: left, Top: top, Right: right, Bottom: bottom}
}

// ManualCropBox builds a crop box from typed fields. Unlike the visual path it
// does not clamp against the image; the processing service validates extents.
func ManualCropBox(left, top, width, height int) types.CropBox {
	return types.CropBox{
		Left:   left,
		Top:    top,
		Right:  left + width,
		Bottom: top + height,
	}
}

// NormalizedBoxToImage converts a [0,1] normalized box, as returned by the
// vision backends, into a non-degenerate pixel crop box.
func NormalizedBoxToImage(box types.Box, width, height int) types.CropBox {
	fw, fh := float64(width), float64(height)

	left := clampInt(roundPixel(clamp(box.X, 0, 1)*fw), 0, width-1)
	top := clampInt(roundPixel(clamp(box.Y, 0, 1)*fh), 0, height-1)
	right := clampInt(roundPixel(clamp(box.X+box.W, 0, 1)*fw), left+1, width)
	bottom := clampInt(roundPixel(clamp(box.Y+box.H, 0, 1)*fh), top+1, height)

	return types.CropBox{Left: left, Top: top, Right: right, Bottom: bottom}
}

// ImageRectToDisplay maps an image-space box back into overlay-local display
// space using the inverse of the display-to-image transform.
func ImageRectToDisplay(box types.CropBox, g types.ImageGeometry) (types.SelectionRect, error) {
	if err := g.Validate(); err != nil {
		return types.SelectionRect{}, err
	}

	var inv mat.Dense
	if err := inv.Inverse(DisplayToImage(g)); err != nil {
		return types.SelectionRect{}, fmt.Errorf("viewport transform not invertible: %w", err)
	}

	x0, y0 := transform(&inv, float64(box.Left), float64(box.Top))
	x1, y1 := transform(&inv, float64(box.Right), float64(box.Bottom))

	return types.SelectionRect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, nil
}

// DisplayToImage returns the 3x3 homogeneous affine transform taking overlay
// coordinates to raster coordinates.
func DisplayToImage(g types.ImageGeometry) *mat.Dense {
	sx, sy := g.ScaleX(), g.ScaleY()
	return mat.NewDense(3, 3, []float64{
		sx, 0, -g.OffsetX * sx,
		0, sy, -g.OffsetY * sy,
		0, 0, 1,
	})
}

// FitGeometry lays out an image of the given natural size inside an overlay
// the way an object-fit "contain" preview does: scaled to fit and centred.
func FitGeometry(naturalWidth, naturalHeight int, overlayWidth, overlayHeight float64) types.ImageGeometry {
	if naturalWidth <= 0 || naturalHeight <= 0 || overlayWidth <= 0 || overlayHeight <= 0 {
		return types.ImageGeometry{NaturalWidth: naturalWidth, NaturalHeight: naturalHeight}
	}

	scale := math.Min(overlayWidth/float64(naturalWidth), overlayHeight/float64(naturalHeight))
	dw := float64(naturalWidth) * scale
	dh := float64(naturalHeight) * scale

	return types.ImageGeometry{
		NaturalWidth:  naturalWidth,
		NaturalHeight: naturalHeight,
		DisplayWidth:  dw,
		DisplayHeight: dh,
		OffsetX:       (overlayWidth - dw) / 2,
		OffsetY:       (overlayHeight - dh) / 2,
	}
}

func transform(m mat.Matrix, x, y float64) (float64, float64) {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{x, y, 1}))
	return out.AtVec(0), out.AtVec(1)
}

// roundPixel rounds half up, saturating values that do not fit a pixel index.
func roundPixel(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Floor(v + 0.5))
}

func clampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
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
