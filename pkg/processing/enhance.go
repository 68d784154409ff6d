package processing

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-editor/pkg/types"
)

// smoothKernel is the 3x3 smoothing filter the sharpness enhancer blends
// against.
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// enhance blends src with a degenerate version of itself:
// out = degenerate + factor*(src - degenerate). Factor 1 returns the source,
// 0 returns the degenerate image, larger values extrapolate away from it.
// Alpha is left untouched.
func enhance(kind types.Kind, src image.Image, factor float64) *image.NRGBA {
	img := imaging.Clone(src)

	switch kind {
	case types.KindBrightness:
		// degenerate: black
		blend(img, nil, factor, func(_ []uint8) [3]float64 { return [3]float64{} })
	case types.KindContrast:
		// degenerate: uniform mean luminance
		m := meanLuma(img)
		blend(img, nil, factor, func(_ []uint8) [3]float64 { return [3]float64{m, m, m} })
	case types.KindSaturation:
		// degenerate: per-pixel grayscale
		blend(img, nil, factor, func(p []uint8) [3]float64 {
			l := luma(p)
			return [3]float64{l, l, l}
		})
	case types.KindSharpen:
		smooth := imaging.Convolve3x3(img, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
		blend(img, smooth, factor, nil)
	}
	return img
}

// blend rewrites img in place. The degenerate pixel comes from deg when it is
// non-nil and from fn otherwise.
func blend(img, deg *image.NRGBA, factor float64, fn func(p []uint8) [3]float64) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		var degRow []uint8
		if deg != nil {
			degRow = deg.Pix[y*deg.Stride : y*deg.Stride+w*4]
		}
		for x := 0; x < w*4; x += 4 {
			p := row[x : x+4 : x+4]
			var d [3]float64
			if degRow != nil {
				d = [3]float64{float64(degRow[x]), float64(degRow[x+1]), float64(degRow[x+2])}
			} else {
				d = fn(p)
			}
			for c := 0; c < 3; c++ {
				p[c] = clampUint8(d[c] + factor*(float64(p[c])-d[c]))
			}
		}
	}
}

// luma is the ITU-R 601-2 luminance of an RGBA pixel.
func luma(p []uint8) float64 {
	return float64(p[0])*0.299 + float64(p[1])*0.587 + float64(p[2])*0.114
}

func meanLuma(img *image.NRGBA) float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			sum += luma(row[x : x+4])
		}
	}
	return math.Floor(sum/float64(w*h) + 0.5)
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
