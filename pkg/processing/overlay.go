package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-editor/pkg/types"
)

var (
	cropColor    = color.NRGBA{255, 204, 0, 255} // gold
	subjectColor = color.NRGBA{0, 255, 0, 255}   // green
	centerColor  = color.NRGBA{0, 170, 255, 255} // blue
)

// DebugOverlay draws the crop box, and the suggested subject box when given,
// over a copy of img.
func DebugOverlay(img image.Image, crop types.CropBox, subject *types.CropBox) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	if subject != nil {
		drawBox(out, *subject, subjectColor, stroke)
	}
	drawBox(out, crop, cropColor, stroke)

	ix, iy := w/2, h/2
	drawHLine(out, iy, ix-6, ix+6, centerColor)
	drawVLine(out, ix, iy-6, iy+6, centerColor)
	return out
}

func drawBox(img *image.NRGBA, box types.CropBox, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := box.Left, box.Top, box.Right, box.Bottom
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < 0 || y >= b.Dy() {
		return
	}
	x0, x1 = max(min(x0, x1), 0), min(max(x0, x1), b.Dx())
	for x := x0; x < x1; x++ {
		img.SetNRGBA(b.Min.X+x, b.Min.Y+y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < 0 || x >= b.Dx() {
		return
	}
	y0, y1 = max(min(y0, y1), 0), min(max(y0, y1), b.Dy())
	for y := y0; y < y1; y++ {
		img.SetNRGBA(b.Min.X+x, b.Min.Y+y, c)
	}
}
