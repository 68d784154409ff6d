// Package cropper frames fixed aspect ratio crops around a subject.
package cropper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/image-editor/pkg/types"
)

// AspectRatio is a named width:height ratio.
type AspectRatio struct {
	Width  int
	Height int
	Name   string
}

// Common aspect ratios
var (
	Square     = AspectRatio{1, 1, "square"}
	Portrait   = AspectRatio{3, 4, "portrait"}
	Landscape  = AspectRatio{4, 3, "landscape"}
	Widescreen = AspectRatio{16, 9, "widescreen"}
	Instagram  = AspectRatio{4, 5, "instagram"}
	Story      = AspectRatio{9, 16, "story"}
)

// CommonAspectRatios returns the named ratios in a stable order.
func CommonAspectRatios() []AspectRatio {
	return []AspectRatio{Square, Portrait, Landscape, Widescreen, Instagram, Story}
}

// Ratio returns width over height.
func (a AspectRatio) Ratio() float64 {
	return float64(a.Width) / float64(a.Height)
}

func (a AspectRatio) String() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%d:%d", a.Width, a.Height)
}

// ParseAspectRatio accepts a common ratio name or "W:H".
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range CommonAspectRatios() {
		if a.Name == s {
			return a, nil
		}
	}

	w, h, ok := strings.Cut(s, ":")
	if !ok {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return AspectRatio{Width: width, Height: height}, nil
}

// Frame returns the largest crop of ratio a that fits a width x height image,
// centred on the subject and shifted back inside the image where needed.
// zoom in (0,1] shrinks the crop; values outside that range mean 1.
func Frame(subject types.CropBox, a AspectRatio, width, height int, zoom float64) (types.CropBox, error) {
	if width <= 0 || height <= 0 {
		return types.CropBox{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if a.Width <= 0 || a.Height <= 0 {
		return types.CropBox{}, fmt.Errorf("invalid aspect ratio %s", a)
	}
	if zoom <= 0 || zoom > 1 {
		zoom = 1
	}

	cw, ch := float64(width), float64(height)
	if a.Ratio() > cw/ch {
		ch = cw / a.Ratio()
	} else {
		cw = ch * a.Ratio()
	}
	w := max(1, int(cw*zoom))
	h := max(1, int(ch*zoom))

	cx, cy := float64(width)/2, float64(height)/2
	if subject.Width() > 0 && subject.Height() > 0 {
		cx = float64(subject.Left+subject.Right) / 2
		cy = float64(subject.Top+subject.Bottom) / 2
	}

	left := clamp(int(cx-float64(w)/2), 0, width-w)
	top := clamp(int(cy-float64(h)/2), 0, height-h)
	return types.CropBox{Left: left, Top: top, Right: left + w, Bottom: top + h}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
