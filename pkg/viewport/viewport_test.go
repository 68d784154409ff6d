package viewport

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/image-editor/pkg/types"
)

func TestMapDisplayRectToImageSpaceExample(t *testing.T) {
	g := types.ImageGeometry{
		NaturalWidth: 1600, NaturalHeight: 1200,
		DisplayWidth: 400, DisplayHeight: 300,
	}
	rect := types.SelectionRect{X: 100, Y: 75, Width: 100, Height: 75}

	got := MapDisplayRectToImageSpace(rect, g)
	want := types.CropBox{Left: 400, Top: 300, Right: 800, Bottom: 600}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MapDisplayRectToImageSpace mismatch (-want +got):\n%s", diff)
	}
}

func TestMapDisplayRectToImageSpaceOffset(t *testing.T) {
	// 400x300 image letterboxed at (50, 20) inside a larger overlay
	g := types.ImageGeometry{
		NaturalWidth: 800, NaturalHeight: 600,
		DisplayWidth: 400, DisplayHeight: 300,
		OffsetX: 50, OffsetY: 20,
	}
	rect := types.SelectionRect{X: 150, Y: 70, Width: 50, Height: 50}

	got := MapDisplayRectToImageSpace(rect, g)
	want := types.CropBox{Left: 200, Top: 100, Right: 300, Bottom: 200}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("offset mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestMapDisplayRectToImageSpaceBounds(t *testing.T) {
	geometries := []types.ImageGeometry{
		{NaturalWidth: 1600, NaturalHeight: 1200, DisplayWidth: 400, DisplayHeight: 300},
		{NaturalWidth: 37, NaturalHeight: 1001, DisplayWidth: 333.3, DisplayHeight: 91.7, OffsetX: 12.5, OffsetY: 3},
		{NaturalWidth: 1, NaturalHeight: 1, DisplayWidth: 640, DisplayHeight: 480},
		{NaturalWidth: 4000, NaturalHeight: 3, DisplayWidth: 7, DisplayHeight: 500, OffsetX: 100},
	}
	rects := []types.SelectionRect{
		{X: 0, Y: 0, Width: 400, Height: 300},
		{X: 0, Y: 0, Width: 0, Height: 0},
		{X: 399, Y: 299, Width: 1, Height: 1},
		{X: 399.9, Y: 299.9, Width: 0, Height: 0},
		{X: 120.25, Y: 33.3, Width: 0.1, Height: 0.4},
		{X: 50, Y: 50, Width: 500, Height: 500},
	}

	for gi, g := range geometries {
		for ri, r := range rects {
			box := MapDisplayRectToImageSpace(r, g)
			if box.Left < 0 || box.Left >= box.Right || box.Right > g.NaturalWidth {
				t.Errorf("geometry %d rect %d: horizontal invariant violated: %+v", gi, ri, box)
			}
			if box.Top < 0 || box.Top >= box.Bottom || box.Bottom > g.NaturalHeight {
				t.Errorf("geometry %d rect %d: vertical invariant violated: %+v", gi, ri, box)
			}
		}
	}
}

func TestMapDisplayRectToImageSpaceDegenerate(t *testing.T) {
	g := types.ImageGeometry{NaturalWidth: 1600, NaturalHeight: 1200, DisplayWidth: 400, DisplayHeight: 300}

	tests := []struct {
		name string
		rect types.SelectionRect
	}{
		{"zero width", types.SelectionRect{X: 10, Y: 10, Width: 0, Height: 40}},
		{"zero height", types.SelectionRect{X: 10, Y: 10, Width: 40, Height: 0}},
		{"zero both at right edge", types.SelectionRect{X: 400, Y: 300}},
		{"left of image", types.SelectionRect{X: -100, Y: -100, Width: 10, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := MapDisplayRectToImageSpace(tt.rect, g)
			if box.Right <= box.Left || box.Bottom <= box.Top {
				t.Errorf("expected non-zero extent, got %+v", box)
			}
		})
	}
}

func TestManualCropBoxIsNotClamped(t *testing.T) {
	got := ManualCropBox(-10, 5, 5000, 20)
	want := types.CropBox{Left: -10, Top: 5, Right: 4990, Bottom: 25}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ManualCropBox mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizedBoxToImage(t *testing.T) {
	got := NormalizedBoxToImage(types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, 800, 600)
	want := types.CropBox{Left: 200, Top: 150, Right: 600, Bottom: 450}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizedBoxToImage mismatch (-want +got):\n%s", diff)
	}

	// Out-of-range and empty boxes still produce a usable box
	got = NormalizedBoxToImage(types.Box{X: 1.4, Y: -3, W: 0, H: 0}, 800, 600)
	if got.Right <= got.Left || got.Bottom <= got.Top || got.Right > 800 || got.Bottom > 600 {
		t.Errorf("expected clamped non-degenerate box, got %+v", got)
	}
}

func TestImageRectToDisplayRoundTrip(t *testing.T) {
	g := types.ImageGeometry{
		NaturalWidth: 1600, NaturalHeight: 1200,
		DisplayWidth: 400, DisplayHeight: 300,
		OffsetX: 25, OffsetY: 10,
	}
	box := types.CropBox{Left: 400, Top: 300, Right: 800, Bottom: 600}

	rect, err := ImageRectToDisplay(box, g)
	if err != nil {
		t.Fatalf("ImageRectToDisplay failed: %v", err)
	}

	want := types.SelectionRect{X: 125, Y: 85, Width: 100, Height: 75}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	if diff := cmp.Diff(want, rect, approx); diff != "" {
		t.Errorf("ImageRectToDisplay mismatch (-want +got):\n%s", diff)
	}

	if back := MapDisplayRectToImageSpace(rect, g); back != box {
		t.Errorf("round trip = %+v, want %+v", back, box)
	}
}

func TestImageRectToDisplayInvalidGeometry(t *testing.T) {
	_, err := ImageRectToDisplay(types.CropBox{Right: 1, Bottom: 1}, types.ImageGeometry{NaturalWidth: 10, NaturalHeight: 10})
	if err == nil {
		t.Error("Expected error for zero display size")
	}
}

func TestFitGeometry(t *testing.T) {
	g := FitGeometry(1600, 1200, 500, 300)

	if g.DisplayWidth != 400 || g.DisplayHeight != 300 {
		t.Errorf("Expected 400x300 display, got %vx%v", g.DisplayWidth, g.DisplayHeight)
	}
	if g.OffsetX != 50 || g.OffsetY != 0 {
		t.Errorf("Expected offset (50,0), got (%v,%v)", g.OffsetX, g.OffsetY)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Fitted geometry invalid: %v", err)
	}
}

func BenchmarkMapDisplayRectToImageSpace(b *testing.B) {
	g := types.ImageGeometry{NaturalWidth: 6000, NaturalHeight: 4000, DisplayWidth: 750, DisplayHeight: 500, OffsetX: 25}
	r := types.SelectionRect{X: 120, Y: 80, Width: 300, Height: 200}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MapDisplayRectToImageSpace(r, g)
	}
}
