package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/felixgeelhaar/bolt/v3"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/types"
)

// resultFormat is the encoding of every result except compress.
const resultFormat = "png"

// DefaultMaxPixels bounds the area of resize and crop results.
const DefaultMaxPixels = 100_000_000

// Service runs operations in process. It satisfies client.Service.
type Service struct {
	logger    *bolt.Logger
	maxPixels int
}

// NewService creates a local processing service.
func NewService(logger *bolt.Logger) *Service {
	return &Service{logger: logging.OrDefault(logger), maxPixels: DefaultMaxPixels}
}

var _ client.Service = (*Service)(nil)

// Process applies one operation. Failures are returned as *client.ServiceError.
func (s *Service) Process(ctx context.Context, kind types.Kind, params types.Params, in types.Artifact) (types.Artifact, error) {
	endpoint := kind.Endpoint()
	if endpoint == "" {
		endpoint = string(kind)
	}
	fail := func(err error) (types.Artifact, error) {
		return types.Artifact{}, &client.ServiceError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return types.Artifact{}, err
	}
	if err := kind.Validate(params); err != nil {
		return fail(err)
	}

	src, _, err := Decode(in.Data)
	if err != nil {
		return types.Artifact{}, client.DecodeError(endpoint, err)
	}

	if kind == types.KindCompress {
		return s.compress(src, params, fail)
	}

	out, err := s.apply(kind, params, src)
	if err != nil {
		return fail(err)
	}

	result, err := EncodeArtifact(out, resultFormat, 0)
	if err != nil {
		return fail(err)
	}

	logging.With(s.logger.Debug()).
		Add(logging.Kind(string(kind)), logging.Bytes(len(result.Data))).
		Msg("operation applied locally")
	return result, nil
}

func (s *Service) apply(kind types.Kind, params types.Params, src image.Image) (image.Image, error) {
	switch kind {
	case types.KindResize:
		w, err := params.Int("width")
		if err != nil {
			return nil, err
		}
		h, err := params.Int("height")
		if err != nil {
			return nil, err
		}
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("resize dimensions must be positive, got %dx%d", w, h)
		}
		if !s.withinLimit(w, h) {
			return nil, fmt.Errorf("resize to %dx%d exceeds the pixel limit", w, h)
		}
		return imaging.Resize(src, w, h, imaging.CatmullRom), nil

	case types.KindCrop:
		box, err := cropBox(params)
		if err != nil {
			return nil, err
		}
		return s.crop(src, box)

	case types.KindBrightness, types.KindContrast, types.KindSaturation, types.KindSharpen:
		factor, err := params.Float("factor")
		if err != nil {
			return nil, err
		}
		if factor < 0 {
			return nil, fmt.Errorf("factor must not be negative, got %g", factor)
		}
		return enhance(kind, src, factor), nil

	case types.KindBlur:
		radius, err := params.Float("radius")
		if err != nil {
			return nil, err
		}
		if radius < 0 {
			return nil, fmt.Errorf("blur radius must not be negative, got %g", radius)
		}
		if radius == 0 {
			return imaging.Clone(src), nil
		}
		return imaging.Blur(src, radius), nil

	case types.KindGrayscale:
		gray := image.NewGray(src.Bounds())
		draw.Draw(gray, gray.Bounds(), src, src.Bounds().Min, draw.Src)
		return gray, nil

	case types.KindRotate:
		angle, err := params.Float("angle")
		if err != nil {
			return nil, err
		}
		// Counter-clockwise, canvas kept at the source size, corners black
		b := src.Bounds()
		rotated := imaging.Rotate(src, angle, color.Black)
		canvas := imaging.New(b.Dx(), b.Dy(), color.Black)
		return imaging.PasteCenter(canvas, rotated), nil

	case types.KindFlip:
		switch strings.ToLower(params.String("direction")) {
		case "horizontal":
			return imaging.FlipH(src), nil
		case "vertical":
			return imaging.FlipV(src), nil
		default:
			return imaging.Clone(src), nil
		}
	}
	return nil, fmt.Errorf("unsupported operation %q", kind)
}

// withinLimit reports whether a w x h raster fits the pixel limit. Both
// sides must be positive.
func (s *Service) withinLimit(w, h int) bool {
	return w <= s.maxPixels/h
}

func cropBox(params types.Params) (types.CropBox, error) {
	var box types.CropBox
	for name, dst := range map[string]*int{"left": &box.Left, "top": &box.Top, "right": &box.Right, "bottom": &box.Bottom} {
		v, err := params.Int(name)
		if err != nil {
			return types.CropBox{}, err
		}
		*dst = v
	}
	return box, nil
}

// crop cuts box out of src. Regions outside the raster come out transparent,
// so an unclamped manual box still yields exactly the requested size.
func (s *Service) crop(src image.Image, box types.CropBox) (image.Image, error) {
	if box.Right <= box.Left || box.Bottom <= box.Top {
		return nil, fmt.Errorf("invalid crop box %+v: right/bottom must exceed left/top", box)
	}
	if !s.withinLimit(box.Width(), box.Height()) {
		return nil, fmt.Errorf("crop box %dx%d exceeds the pixel limit", box.Width(), box.Height())
	}

	b := src.Bounds()
	rect := image.Rect(box.Left, box.Top, box.Right, box.Bottom).Add(b.Min)
	if rect.In(b) {
		return imaging.Crop(src, rect), nil
	}

	canvas := imaging.New(box.Width(), box.Height(), color.Transparent)
	return imaging.Paste(canvas, src, image.Pt(-box.Left, -box.Top)), nil
}

func (s *Service) compress(src image.Image, params types.Params, fail func(error) (types.Artifact, error)) (types.Artifact, error) {
	quality, err := params.Int("quality")
	if err != nil {
		return fail(err)
	}
	if quality < 1 || quality > 100 {
		return fail(fmt.Errorf("quality must be between 1 and 100, got %d", quality))
	}
	format := params.String("format")
	if format == "" {
		format = "jpeg"
	}

	// JPEG has no alpha channel
	if NormalizeFormat(format) == "jpeg" {
		src = flatten(src)
	}

	result, err := EncodeArtifact(src, format, quality)
	if err != nil {
		return fail(err)
	}
	return result, nil
}

// Probe reports size, format and color mode without decoding pixel data.
func (s *Service) Probe(ctx context.Context, in types.Artifact) (types.ImageInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.ImageInfo{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		img, f, derr := Decode(in.Data)
		if derr != nil {
			return types.ImageInfo{}, client.DecodeError("get-image-info", errors.Join(err, derr))
		}
		b := img.Bounds()
		cfg = image.Config{ColorModel: img.ColorModel(), Width: b.Dx(), Height: b.Dy()}
		format = f
	}

	return types.ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: strings.ToUpper(format),
		Mode:   colorMode(cfg.ColorModel),
	}, nil
}

// colorMode names a color model the way image tooling conventionally does.
func colorMode(m color.Model) string {
	switch m {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.CMYKModel:
		return "CMYK"
	case color.YCbCrModel:
		return "RGB"
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model, color.NYCbCrAModel:
		return "RGBA"
	}
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	return "RGB"
}

func flatten(src image.Image) image.Image {
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}
