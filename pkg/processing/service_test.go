package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/types"
)

// createTestImage creates a gray image with a bright centre block.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{240, 200, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

func pngArtifact(t testing.TB, img image.Image) types.Artifact {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return types.Artifact{Data: buf.Bytes(), Format: "png"}
}

func decode(t *testing.T, a types.Artifact) image.Image {
	t.Helper()
	img, _, err := Decode(a.Data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return img
}

func newTestService() *Service {
	return NewService(logging.Nop())
}

func TestProcessAllKinds(t *testing.T) {
	svc := newTestService()
	src := pngArtifact(t, createTestImage(120, 90))

	tests := []struct {
		kind   types.Kind
		params types.Params
		width  int
		height int
		format string
	}{
		{types.KindResize, types.Params{"width": 60, "height": 30}, 60, 30, "png"},
		{types.KindCrop, types.Params{"left": 10, "top": 20, "right": 70, "bottom": 80}, 60, 60, "png"},
		{types.KindBrightness, types.Params{"factor": 1.3}, 120, 90, "png"},
		{types.KindContrast, types.Params{"factor": 0.5}, 120, 90, "png"},
		{types.KindSaturation, types.Params{"factor": 0}, 120, 90, "png"},
		{types.KindBlur, types.Params{"radius": 2.5}, 120, 90, "png"},
		{types.KindSharpen, types.Params{"factor": 2}, 120, 90, "png"},
		{types.KindGrayscale, nil, 120, 90, "png"},
		{types.KindRotate, types.Params{"angle": 90}, 120, 90, "png"},
		{types.KindRotate, types.Params{"angle": 30}, 120, 90, "png"},
		{types.KindFlip, types.Params{"direction": "horizontal"}, 120, 90, "png"},
		{types.KindCompress, types.Params{"quality": 60, "format": "JPEG"}, 120, 90, "jpeg"},
		{types.KindCompress, types.Params{"quality": 70, "format": "webp"}, 120, 90, "webp"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.DisplayName(), func(t *testing.T) {
			out, err := svc.Process(context.Background(), tt.kind, tt.params, src)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if out.Format != tt.format {
				t.Errorf("Format = %q, want %q", out.Format, tt.format)
			}

			info, err := svc.Probe(context.Background(), out)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if info.Width != tt.width || info.Height != tt.height {
				t.Errorf("size = %dx%d, want %dx%d", info.Width, info.Height, tt.width, tt.height)
			}
		})
	}
}

func TestProcessErrorsAreServiceErrors(t *testing.T) {
	svc := newTestService()
	src := pngArtifact(t, createTestImage(40, 40))

	tests := []struct {
		name   string
		kind   types.Kind
		params types.Params
		input  types.Artifact
		decode bool
	}{
		{"missing param", types.KindResize, types.Params{"width": 10}, src, false},
		{"zero resize", types.KindResize, types.Params{"width": 0, "height": 10}, src, false},
		{"inverted crop", types.KindCrop, types.Params{"left": 30, "top": 0, "right": 10, "bottom": 10}, src, false},
		{"crop past int32", types.KindCrop, types.Params{"left": 0, "top": 0, "right": 1 << 32, "bottom": 1 << 32}, src, false},
		{"crop over pixel limit", types.KindCrop, types.Params{"left": 0, "top": 0, "right": 1 << 30, "bottom": 1 << 30}, src, false},
		{"resize over pixel limit", types.KindResize, types.Params{"width": 1 << 20, "height": 1 << 20}, src, false},
		{"negative blur", types.KindBlur, types.Params{"radius": -1}, src, false},
		{"bad quality", types.KindCompress, types.Params{"quality": 0, "format": "jpeg"}, src, false},
		{"bad format", types.KindCompress, types.Params{"quality": 50, "format": "heic"}, src, false},
		{"undecodable input", types.KindGrayscale, nil, types.Artifact{Data: []byte("not an image")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Process(context.Background(), tt.kind, tt.params, tt.input)
			var se *client.ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("Process() error = %v, want *client.ServiceError", err)
			}
			if se.Endpoint != tt.kind.Endpoint() {
				t.Errorf("Endpoint = %q, want %q", se.Endpoint, tt.kind.Endpoint())
			}
			if got := errors.Is(err, client.ErrDecode); got != tt.decode {
				t.Errorf("errors.Is(ErrDecode) = %v, want %v", got, tt.decode)
			}
		})
	}
}

func TestWithinLimitDoesNotOverflow(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		w, h int
		want bool
	}{
		{10_000, 10_000, true},
		{10_000, 10_001, false},
		{1 << 32, 1 << 32, false},
		{1, DefaultMaxPixels, true},
		{DefaultMaxPixels + 1, 1, false},
	}
	for _, tt := range tests {
		if got := svc.withinLimit(tt.w, tt.h); got != tt.want {
			t.Errorf("withinLimit(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestCropOutsideRasterKeepsRequestedSize(t *testing.T) {
	svc := newTestService()
	src := pngArtifact(t, createTestImage(50, 50))

	out, err := svc.Process(context.Background(), types.KindCrop,
		types.Params{"left": -10, "top": 30, "right": 40, "bottom": 90}, src)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	img := decode(t, out)
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 60 {
		t.Errorf("size = %v, want 50x60", img.Bounds().Size())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Error("padding outside the raster should be transparent")
	}
	if _, _, _, a := img.At(20, 5).RGBA(); a == 0 {
		t.Error("pixels inside the raster should be opaque")
	}
}

func TestEnhanceFactors(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{100, 150, 200, 255})
	src.SetNRGBA(1, 0, color.NRGBA{20, 40, 60, 128})

	identity := enhance(types.KindBrightness, src, 1)
	if !bytes.Equal(identity.Pix, src.Pix) {
		t.Errorf("factor 1 changed pixels: %v -> %v", src.Pix, identity.Pix)
	}

	black := enhance(types.KindBrightness, src, 0)
	if c := black.NRGBAAt(0, 0); c.R != 0 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Errorf("brightness 0 = %v, want opaque black", c)
	}
	if c := black.NRGBAAt(1, 0); c.A != 128 {
		t.Errorf("alpha changed to %d", c.A)
	}

	gray := enhance(types.KindSaturation, src, 0)
	if c := gray.NRGBAAt(0, 0); c.R != c.G || c.G != c.B {
		t.Errorf("saturation 0 = %v, want gray", c)
	}

	brighter := enhance(types.KindBrightness, src, 2)
	if c := brighter.NRGBAAt(0, 0); c.R != 200 || c.B != 255 {
		t.Errorf("brightness 2 = %v, want R=200 B=255 (clamped)", c)
	}
}

func TestGrayscaleProbesAsL(t *testing.T) {
	svc := newTestService()
	out, err := svc.Process(context.Background(), types.KindGrayscale, nil, pngArtifact(t, createTestImage(20, 20)))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	info, err := svc.Probe(context.Background(), out)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Mode != "L" || info.Format != "PNG" {
		t.Errorf("Probe() = %+v, want PNG/L", info)
	}
}

func TestFlipUnknownDirectionIsNoop(t *testing.T) {
	svc := newTestService()
	src := createTestImage(10, 10)
	out, err := svc.Process(context.Background(), types.KindFlip, types.Params{"direction": "diagonal"}, pngArtifact(t, src))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	got := decode(t, out)
	for _, pt := range []image.Point{{0, 0}, {5, 5}, {9, 0}} {
		wr, wg, wb, wa := src.At(pt.X, pt.Y).RGBA()
		r, g, b, a := got.At(pt.X, pt.Y).RGBA()
		if r != wr || g != wg || b != wb || a != wa {
			t.Errorf("pixel %v = %v, want %v", pt, got.At(pt.X, pt.Y), src.At(pt.X, pt.Y))
		}
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	_, err := newTestService().Probe(context.Background(), types.Artifact{Data: []byte{1, 2, 3}})
	if !errors.Is(err, client.ErrDecode) {
		t.Errorf("Probe() error = %v, want ErrDecode", err)
	}
}

func TestProcessCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestService().Process(ctx, types.KindGrayscale, nil, pngArtifact(t, createTestImage(4, 4)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"JPEG":       "jpeg",
		"jpg":        "jpeg",
		".PNG":       "png",
		"image/webp": "webp",
		"TIF":        "tiff",
	}
	for in, want := range tests {
		if got := NormalizeFormat(in); got != want {
			t.Errorf("NormalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	src := pngArtifact(t, createTestImage(16, 8))

	path := filepath.Join(dir, "nested", "in.png")
	if err := SaveFile(src, path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	loaded, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Format != "png" || !bytes.Equal(loaded.Data, src.Data) {
		t.Errorf("loaded artifact differs: format %q", loaded.Format)
	}

	jpgPath := filepath.Join(dir, "out.jpg")
	if err := SaveAs(loaded, jpgPath, 80); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	converted, err := LoadFile(jpgPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if converted.Format != "jpeg" {
		t.Errorf("converted format = %q, want jpeg", converted.Format)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.png"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(filepath.Join(dir, "bad.png")); err == nil {
		t.Error("expected error for undecodable file")
	}
}

func TestDebugOverlay(t *testing.T) {
	img := createTestImage(100, 100)
	subject := types.CropBox{Left: 30, Top: 30, Right: 70, Bottom: 70}
	out := DebugOverlay(img, types.CropBox{Left: 10, Top: 10, Right: 90, Bottom: 90}, &subject)

	if c := out.NRGBAAt(10, 50); c != cropColor {
		t.Errorf("crop edge pixel = %v, want %v", c, cropColor)
	}
	if c := out.NRGBAAt(30, 50); c != subjectColor {
		t.Errorf("subject edge pixel = %v, want %v", c, subjectColor)
	}
	if c := out.NRGBAAt(50, 50); c != centerColor {
		t.Errorf("centre marker pixel = %v, want %v", c, centerColor)
	}
}

func BenchmarkProcessSharpen(b *testing.B) {
	svc := newTestService()
	src := pngArtifact(b, createTestImage(400, 300))
	params := types.Params{"factor": 1.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Process(context.Background(), types.KindSharpen, params, src); err != nil {
			b.Fatal(err)
		}
	}
}
