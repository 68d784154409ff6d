package types

import (
	"math"
	"testing"
)

func TestImageGeometryScale(t *testing.T) {
	g := ImageGeometry{NaturalWidth: 1600, NaturalHeight: 1200, DisplayWidth: 400, DisplayHeight: 300}
	if g.ScaleX() != 4 || g.ScaleY() != 4 {
		t.Errorf("Expected scale 4x4, got %fx%f", g.ScaleX(), g.ScaleY())
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Valid geometry rejected: %v", err)
	}
}

func TestImageGeometryValidate(t *testing.T) {
	tests := []struct {
		name string
		geom ImageGeometry
	}{
		{"zero display width", ImageGeometry{NaturalWidth: 10, NaturalHeight: 10, DisplayWidth: 0, DisplayHeight: 10}},
		{"negative display height", ImageGeometry{NaturalWidth: 10, NaturalHeight: 10, DisplayWidth: 10, DisplayHeight: -1}},
		{"zero natural size", ImageGeometry{DisplayWidth: 10, DisplayHeight: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.geom.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestKindValidate(t *testing.T) {
	if err := KindCrop.Validate(Params{"left": 0, "top": 0, "right": 1, "bottom": 1}); err != nil {
		t.Errorf("Complete crop params rejected: %v", err)
	}
	if err := KindCrop.Validate(Params{"left": 0}); err == nil {
		t.Error("Expected error for missing crop params")
	}
	if err := KindGrayscale.Validate(nil); err != nil {
		t.Errorf("Grayscale needs no params: %v", err)
	}
	if err := Kind("posterize").Validate(nil); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestKindEndpointsAndNames(t *testing.T) {
	if len(Kinds()) != 11 {
		t.Fatalf("Expected 11 kinds, got %d", len(Kinds()))
	}
	if KindBrightness.Endpoint() != "adjust-brightness" {
		t.Errorf("Unexpected endpoint %q", KindBrightness.Endpoint())
	}
	if KindGrayscale.DisplayName() != "Grayscale" {
		t.Errorf("Unexpected display name %q", KindGrayscale.DisplayName())
	}
	if KindBatch.DisplayName() != "Batch Operations" {
		t.Errorf("Unexpected batch display name %q", KindBatch.DisplayName())
	}
	if _, err := ParseKind("batch"); err == nil {
		t.Error("batch must not parse as a service kind")
	}
}

func TestParamsConversions(t *testing.T) {
	p := Params{"factor": 1.2, "width": 800, "quality": "85", "format": "JPEG"}

	if f, err := p.Float("factor"); err != nil || f != 1.2 {
		t.Errorf("Float(factor) = %v, %v", f, err)
	}
	if n, err := p.Int("quality"); err != nil || n != 85 {
		t.Errorf("Int(quality) = %v, %v", n, err)
	}
	if s := p.String("width"); s != "800" {
		t.Errorf("String(width) = %q", s)
	}
	if s := p.String("factor"); s != "1.2" {
		t.Errorf("String(factor) = %q", s)
	}
	if _, err := p.Float("format"); err == nil {
		t.Error("Expected error for non-numeric string")
	}
	if _, err := p.Float("missing"); err == nil {
		t.Error("Expected error for missing param")
	}
}

func TestImageGeometryOverlaySize(t *testing.T) {
	g := ImageGeometry{NaturalWidth: 1600, NaturalHeight: 900, DisplayWidth: 800, DisplayHeight: 450, OffsetY: 75}
	if w, h := g.OverlaySize(); w != 800 || h != 600 {
		t.Errorf("OverlaySize() = %vx%v, want 800x600", w, h)
	}
}

func TestParamsIntRange(t *testing.T) {
	p := Params{"ok": 4096.7, "big": 1 << 40, "small": -1e12, "nan": math.NaN()}

	if n, err := p.Int("ok"); err != nil || n != 4096 {
		t.Errorf("Int(ok) = %v, %v", n, err)
	}
	for _, name := range []string{"big", "small", "nan"} {
		if n, err := p.Int(name); err == nil {
			t.Errorf("Int(%s) = %d, expected an out of range error", name, n)
		}
	}
}

func TestParamsClone(t *testing.T) {
	p := Params{
		"factor":     1.0,
		"nested":     map[string]any{"x": 1},
		"list":       []any{Params{"y": 2}},
		"operations": []Operation{{ID: "a", Kind: KindBlur, Params: Params{"radius": 1}}},
	}
	c := p.Clone()
	c["factor"] = 2.0
	c["nested"].(map[string]any)["x"] = 10
	c["list"].([]any)[0].(Params)["y"] = 20
	c["operations"].([]Operation)[0].Params["radius"] = 30

	if p["factor"] != 1.0 {
		t.Error("Clone shares storage with the original")
	}
	if p["nested"].(map[string]any)["x"] != 1 {
		t.Error("Clone shares a nested map")
	}
	if p["list"].([]any)[0].(Params)["y"] != 2 {
		t.Error("Clone shares a nested slice")
	}
	if p["operations"].([]Operation)[0].Params["radius"] != 1 {
		t.Error("Clone shares operation params")
	}
}
