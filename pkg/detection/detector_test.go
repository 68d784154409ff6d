package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/image-editor/pkg/types"
)

type fakeVision struct {
	result *types.AnalysisResult
	err    error
	prompt string
}

func (f *fakeVision) Describe(ctx context.Context, model, prompt string, img types.Artifact) (string, error) {
	return "a dog on grass", f.err
}

func (f *fakeVision) LocateSubject(ctx context.Context, model, prompt string, img types.Artifact) (*types.AnalysisResult, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

func TestSuggestMapsToPixels(t *testing.T) {
	vc := &fakeVision{result: &types.AnalysisResult{
		Primary: types.Primary{Label: "Dog", Confidence: 0.9, Box: types.Box{X: 0.1, Y: 0.2, W: 0.5, H: 0.5}},
		Tags:    []string{"Dog", "dog", " grass "},
	}}

	s, err := NewDetector(vc, "llava").Suggest(context.Background(), types.Artifact{Data: []byte{1}}, 1000, 800)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}

	want := types.CropBox{Left: 100, Top: 160, Right: 600, Bottom: 560}
	if diff := cmp.Diff(want, s.Box); diff != "" {
		t.Errorf("box mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"dog", "grass"}, s.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if !s.Found() {
		t.Error("expected a found subject")
	}
	if vc.prompt != DefaultPrompt {
		t.Error("default prompt not used")
	}
}

func TestSuggestFallbackIsNotFound(t *testing.T) {
	vc := &fakeVision{result: &types.AnalysisResult{
		Primary:     types.Primary{Label: "parse error", Confidence: 0.1, Box: types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}},
		Description: "Failed to parse model response",
	}}

	s, err := NewDetector(vc, "m").Suggest(context.Background(), types.Artifact{Data: []byte{1}}, 400, 400)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if s.Found() || s.Confidence != 0 {
		t.Errorf("fallback reported as found: %+v", s)
	}
	if s.Box != (types.CropBox{Left: 100, Top: 100, Right: 300, Bottom: 300}) {
		t.Errorf("fallback box = %+v", s.Box)
	}
}

func TestSuggestPixelAnswer(t *testing.T) {
	vc := &fakeVision{result: &types.AnalysisResult{
		Primary: types.Primary{Label: "car", Box: types.Box{X: 200, Y: 100, W: 400, H: 300}},
	}}

	s, err := NewDetector(vc, "m").Suggest(context.Background(), types.Artifact{Data: []byte{1}}, 800, 600)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if s.Box != (types.CropBox{Left: 200, Top: 100, Right: 600, Bottom: 400}) {
		t.Errorf("box = %+v", s.Box)
	}
}

func TestSuggestErrors(t *testing.T) {
	d := NewDetector(&fakeVision{err: errors.New("connection refused")}, "m")

	if _, err := d.Suggest(context.Background(), types.Artifact{}, 0, 10); err == nil {
		t.Error("expected error for empty size")
	}
	if _, err := d.Suggest(context.Background(), types.Artifact{Data: []byte{1}}, 10, 10); err == nil {
		t.Error("expected backend error")
	}
}

func TestNormalizeBoxClampsExtent(t *testing.T) {
	got := normalizeBox(types.Box{X: 0.8, Y: -0.2, W: 0.5, H: 0.9}, 100, 100)
	want := types.Box{X: 0.8, Y: 0, W: 0.2, H: 0.9}
	approx := cmp.Comparer(func(a, b float64) bool { d := a - b; return d < 1e-9 && d > -1e-9 })
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("normalizeBox mismatch (-want +got):\n%s", diff)
	}
}
