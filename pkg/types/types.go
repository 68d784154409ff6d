package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ImageGeometry describes how the loaded image is laid out inside the
// interactive overlay. Natural dimensions are raster pixels, display
// dimensions and offsets are overlay-local pixels.
type ImageGeometry struct {
	NaturalWidth  int     `json:"natural_width"`
	NaturalHeight int     `json:"natural_height"`
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
	OffsetX       float64 `json:"offset_x"`
	OffsetY       float64 `json:"offset_y"`
}

// ScaleX is the horizontal display-to-image scale factor.
func (g ImageGeometry) ScaleX() float64 {
	return float64(g.NaturalWidth) / g.DisplayWidth
}

// ScaleY is the vertical display-to-image scale factor.
func (g ImageGeometry) ScaleY() float64 {
	return float64(g.NaturalHeight) / g.DisplayHeight
}

// OverlaySize returns the size of the overlay the image is centred in.
// Selection rectangles are relative to its top-left corner.
func (g ImageGeometry) OverlaySize() (float64, float64) {
	return g.DisplayWidth + 2*g.OffsetX, g.DisplayHeight + 2*g.OffsetY
}

// Validate checks that both scale factors are positive and finite.
func (g ImageGeometry) Validate() error {
	if g.NaturalWidth <= 0 || g.NaturalHeight <= 0 {
		return fmt.Errorf("invalid natural size %dx%d", g.NaturalWidth, g.NaturalHeight)
	}
	if !(g.DisplayWidth > 0) || !(g.DisplayHeight > 0) {
		return fmt.Errorf("invalid display size %gx%g", g.DisplayWidth, g.DisplayHeight)
	}
	sx, sy := g.ScaleX(), g.ScaleY()
	if math.IsInf(sx, 0) || math.IsInf(sy, 0) || math.IsNaN(sx) || math.IsNaN(sy) {
		return fmt.Errorf("scale factors not finite: %g, %g", sx, sy)
	}
	return nil
}

// SelectionRect is a rectangle in display (overlay-local) space.
type SelectionRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r SelectionRect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r SelectionRect) Bottom() float64 { return r.Y + r.Height }

// Contains reports whether (x, y) lies inside the rectangle, edges included.
func (r SelectionRect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.Right() && y >= r.Y && y <= r.Bottom()
}

// CropBox is a crop region in image space, in whole pixels.
type CropBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns Right-Left.
func (b CropBox) Width() int { return b.Right - b.Left }

// Height returns Bottom-Top.
func (b CropBox) Height() int { return b.Bottom - b.Top }

// Params returns the box as crop operation parameters.
func (b CropBox) Params() Params {
	return Params{
		"left":   b.Left,
		"top":    b.Top,
		"right":  b.Right,
		"bottom": b.Bottom,
	}
}

// Artifact is an encoded image payload exchanged with the processing service.
type Artifact struct {
	Data   []byte
	Format string
}

// Empty reports whether the artifact carries no data.
func (a Artifact) Empty() bool { return len(a.Data) == 0 }

// ImageInfo is the result of probing an encoded image.
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Mode   string `json:"mode"`
}

// Kind names an image operation understood by the processing service.
type Kind string

const (
	KindResize     Kind = "resize"
	KindCrop       Kind = "crop"
	KindBrightness Kind = "brightness"
	KindContrast   Kind = "contrast"
	KindSaturation Kind = "saturation"
	KindBlur       Kind = "blur"
	KindSharpen    Kind = "sharpen"
	KindGrayscale  Kind = "grayscale"
	KindRotate     Kind = "rotate"
	KindFlip       Kind = "flip"
	KindCompress   Kind = "compress"

	// KindBatch labels the composite history entry of a batch run. It is
	// never sent to the processing service.
	KindBatch Kind = "batch"
)

type kindInfo struct {
	endpoint string
	display  string
	params   []string
}

var kindTable = map[Kind]kindInfo{
	KindResize:     {"resize-image", "Resize", []string{"width", "height"}},
	KindCrop:       {"crop-image", "Crop", []string{"left", "top", "right", "bottom"}},
	KindBrightness: {"adjust-brightness", "Brightness", []string{"factor"}},
	KindContrast:   {"adjust-contrast", "Contrast", []string{"factor"}},
	KindSaturation: {"adjust-saturation", "Saturation", []string{"factor"}},
	KindBlur:       {"apply-blur", "Blur", []string{"radius"}},
	KindSharpen:    {"apply-sharpen", "Sharpen", []string{"factor"}},
	KindGrayscale:  {"convert-to-grayscale", "Grayscale", nil},
	KindRotate:     {"rotate-image", "Rotate", []string{"angle"}},
	KindFlip:       {"flip-image", "Flip", []string{"direction"}},
	KindCompress:   {"compress-image", "Compress", []string{"quality", "format"}},
}

// Kinds returns every operation kind in a stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindTable))
	for k := range kindTable {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseKind converts a string into a known Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindTable[k]; !ok {
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the operation kinds.
func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

// Endpoint returns the service route name for the kind.
func (k Kind) Endpoint() string {
	return kindTable[k].endpoint
}

// DisplayName returns a human-readable name, falling back to the raw kind.
func (k Kind) DisplayName() string {
	if k == KindBatch {
		return "Batch Operations"
	}
	if s, ok := kindTable[k]; ok {
		return s.display
	}
	return string(k)
}

// RequiredParams lists the parameter names the kind needs.
func (k Kind) RequiredParams() []string {
	return append([]string(nil), kindTable[k].params...)
}

// Validate checks that params carries every required parameter for the kind.
func (k Kind) Validate(params Params) error {
	info, ok := kindTable[k]
	if !ok {
		return fmt.Errorf("unknown operation kind %q", k)
	}
	for _, name := range info.params {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("%s: missing parameter %q", k, name)
		}
	}
	return nil
}

// Params maps parameter names to numeric or string values.
type Params map[string]any

// Clone returns a deep copy of the parameter map. Nested maps, slices and
// operation lists are copied too.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case Params:
		return v.Clone()
	case map[string]any:
		return map[string]any(Params(v).Clone())
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []Operation:
		out := make([]Operation, len(v))
		for i, op := range v {
			op.Params = op.Params.Clone()
			out[i] = op
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

// String renders a parameter as it is sent over the wire.
func (p Params) String(name string) string {
	switch v := p[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float reads a numeric parameter, accepting numeric strings.
func (p Params) Float(name string) (float64, error) {
	switch v := p[name].(type) {
	case nil:
		return 0, fmt.Errorf("missing parameter %q", name)
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", name, v)
	}
}

// Int reads a parameter as an integer, truncating fractional values.
// Values outside the int32 range are rejected.
func (p Params) Int(name string) (int, error) {
	f, err := p.Float(name)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("parameter %q out of range: %g", name, f)
	}
	return int(f), nil
}

// Operation is a queued image operation.
type Operation struct {
	ID     string `json:"id" yaml:"id"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Params Params `json:"params" yaml:"params"`
}

// Name returns the display name of the operation's kind.
func (o Operation) Name() string { return o.Kind.DisplayName() }
