// Package vision locates the subject of an image without a model by scoring
// windows of an edge and brightness saliency map. It satisfies
// client.VisionClient so it can stand in for a model backend offline.
package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
)

// analysisSide bounds the longer side of the raster the map is built from.
const analysisSide = 256

// Config weights the saliency terms.
type Config struct {
	EdgeWeight       float64
	BrightnessWeight float64
	// Threshold is the minimum mean saliency of a window to count as a subject.
	Threshold        float64
	// MinSubjectRatio is the smallest window area, as a fraction of the image.
	MinSubjectRatio  float64
}

// DefaultConfig returns the weights used by New.
func DefaultConfig() Config {
	return Config{
		EdgeWeight:       0.3,
		BrightnessWeight: 0.2,
		Threshold:        0.01,
		MinSubjectRatio:  0.05,
	}
}

// Region is a scored window in analysis pixels.
type Region struct {
	X, Y, Width, Height int
	Score               float64
}

// Area returns the window area.
func (r Region) Area() int { return r.Width * r.Height }

// SubjectDetector scores image windows by saliency.
type SubjectDetector struct {
	config Config
}

var _ client.VisionClient = (*SubjectDetector)(nil)

// New creates a detector with DefaultConfig.
func New() *SubjectDetector {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a detector with custom weights.
func NewWithConfig(config Config) *SubjectDetector {
	return &SubjectDetector{config: config}
}

// LocateSubject returns the highest scoring window as a normalized box. The
// model and prompt are ignored. When no window clears the threshold the
// result is labelled "none" with the central half of the image.
func (d *SubjectDetector) LocateSubject(ctx context.Context, _, _ string, img types.Artifact) (*types.AnalysisResult, error) {
	src, err := d.raster(ctx, img)
	if err != nil {
		return nil, err
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	regions := d.DetectSubjects(src)
	if len(regions) == 0 {
		return &types.AnalysisResult{
			Primary:     types.Primary{Label: "none", Box: types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, Cx: 0.5, Cy: 0.5},
			Description: "no salient region",
		}, nil
	}

	best := regions[0]
	box := types.Box{
		X: float64(best.X) / float64(w),
		Y: float64(best.Y) / float64(h),
		W: float64(best.Width) / float64(w),
		H: float64(best.Height) / float64(h),
	}
	return &types.AnalysisResult{
		Primary: types.Primary{
			Label:      "salient region",
			Confidence: math.Min(1, best.Score/(d.config.EdgeWeight+d.config.BrightnessWeight)),
			Box:        box,
			Cx:         box.X + box.W/2,
			Cy:         box.Y + box.H/2,
		},
		Description: fmt.Sprintf("salient region found among %d candidates", len(regions)),
		Tags:        []string{"saliency"},
	}, nil
}

// Describe reports the dominant colors of img.
func (d *SubjectDetector) Describe(ctx context.Context, _, _ string, img types.Artifact) (string, error) {
	src, err := d.raster(ctx, img)
	if err != nil {
		return "", err
	}
	colors := DominantColors(src, 3)
	names := make([]string, len(colors))
	for i, c := range colors {
		names[i] = fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
	}
	return "dominant colors " + strings.Join(names, ", "), nil
}

func (d *SubjectDetector) raster(ctx context.Context, img types.Artifact) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, _, err := processing.Decode(img.Data)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	if b.Dx() > analysisSide || b.Dy() > analysisSide {
		return imaging.Fit(src, analysisSide, analysisSide, imaging.Box), nil
	}
	return imaging.Clone(src), nil
}

// DetectSubjects returns up to ten windows whose mean saliency clears the
// threshold, best first.
func (d *SubjectDetector) DetectSubjects(img image.Image) []Region {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	sal := d.SaliencyMap(img)

	minArea := int(float64(width*height) * d.config.MinSubjectRatio)
	var regions []Region
	for _, size := range []int{width / 16, width / 12, width / 8, width / 4, width / 2} {
		if size < 10 || size*size < minArea {
			continue
		}
		step := max(size/8, 1)
		for y := 0; y+size <= height; y += step {
			for x := 0; x+size <= width; x += step {
				score := windowMean(sal, x, y, size, size)
				if score > d.config.Threshold {
					regions = append(regions, Region{X: x, Y: y, Width: size, Height: size, Score: score})
				}
			}
		}
	}

	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Score > regions[j].Score })
	if len(regions) > 10 {
		regions = regions[:10]
	}
	return regions
}

// SaliencyMap scores every interior pixel by its mean color distance to its
// eight neighbours plus its brightness. Rows are y, columns are x.
func (d *SubjectDetector) SaliencyMap(img image.Image) *mat.Dense {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	sal := mat.NewDense(max(height, 1), max(width, 1), nil)

	rgb := func(x, y int) (float64, float64, float64) {
		r, g, bl, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA()
		return float64(r), float64(g), float64(bl)
	}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			r1, g1, b1 := rgb(x, y)
			var edge float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					r2, g2, b2 := rgb(x+dx, y+dy)
					edge += math.Sqrt((r1-r2)*(r1-r2) + (g1-g2)*(g1-g2) + (b1-b2)*(b1-b2))
				}
			}
			edge /= 8 * 65535
			brightness := (r1 + g1 + b1) / (3 * 65535)
			sal.Set(y, x, d.config.EdgeWeight*edge+d.config.BrightnessWeight*brightness)
		}
	}
	return sal
}

func windowMean(sal *mat.Dense, x, y, w, h int) float64 {
	rows, cols := sal.Dims()
	h = min(h, rows-y)
	w = min(w, cols-x)
	if w <= 0 || h <= 0 {
		return 0
	}
	view := sal.Slice(y, y+h, x, x+w)
	return mat.Sum(view) / float64(w*h)
}

// DominantColors returns the n most frequent colors of img after quantizing
// each channel to its top four bits.
func DominantColors(img image.Image, n int) [][3]uint8 {
	b := img.Bounds()
	counts := make(map[[3]uint8]int)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			counts[[3]uint8{uint8(r>>8) & 0xf0, uint8(g>>8) & 0xf0, uint8(bl>>8) & 0xf0}]++
		}
	}

	colors := make([][3]uint8, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		ci, cj := counts[colors[i]], counts[colors[j]]
		if ci != cj {
			return ci > cj
		}
		return string(colors[i][:]) < string(colors[j][:])
	})
	if len(colors) > n {
		colors = colors[:n]
	}
	return colors
}
