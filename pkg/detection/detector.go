// Package detection proposes an initial crop selection by asking a vision
// model where the dominant subject of the image is.
package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/viewport"
)

// DefaultPrompt asks for a normalized subject box as strict JSON.
const DefaultPrompt = `You are an image subject locator for a cropping tool.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (<= 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- Coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- The box should tightly include the visually dominant subject (prefer people, vehicles, animals; else the most central salient object).
- If no subject is found, return label "none" with box {"x":0.25,"y":0.25,"w":0.5,"h":0.5}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var fallbackIndicators = []string{"unclear", "empty", "parse", "error", "fallback", "non-json"}

// Suggestion is a proposed crop in image space.
type Suggestion struct {
	Label       string        `json:"label"`
	Confidence  float64       `json:"confidence"`
	Box         types.CropBox `json:"box"`
	Description string        `json:"description,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
}

// Found reports whether the model located a real subject.
func (s Suggestion) Found() bool { return s.Label != "none" }

// Detector turns vision model answers into crop suggestions.
type Detector struct {
	client client.VisionClient
	model  string
	prompt string
}

// NewDetector creates a detector using model on the given backend.
func NewDetector(vc client.VisionClient, model string) *Detector {
	return &Detector{client: vc, model: model, prompt: DefaultPrompt}
}

// WithPrompt replaces the locator prompt.
func (d *Detector) WithPrompt(prompt string) *Detector {
	d.prompt = prompt
	return d
}

// Suggest locates the subject of img, whose raster is width x height pixels.
func (d *Detector) Suggest(ctx context.Context, img types.Artifact, width, height int) (Suggestion, error) {
	if width <= 0 || height <= 0 {
		return Suggestion{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}

	result, err := d.client.LocateSubject(ctx, d.model, d.prompt, img)
	if err != nil {
		return Suggestion{}, fmt.Errorf("subject detection failed: %w", err)
	}
	result = validate(result, width, height)

	return Suggestion{
		Label:       result.Primary.Label,
		Confidence:  result.Primary.Confidence,
		Box:         viewport.NormalizedBoxToImage(result.Primary.Box, width, height),
		Description: result.Description,
		Tags:        normalizeTags(result.Tags),
	}, nil
}

// Describe asks the model for a short description of img.
func (d *Detector) Describe(ctx context.Context, img types.Artifact) (string, error) {
	return d.client.Describe(ctx, d.model, "Describe this image briefly.", img)
}

func validate(result *types.AnalysisResult, width, height int) *types.AnalysisResult {
	result.Primary.Box = normalizeBox(result.Primary.Box, width, height)

	label := strings.ToLower(result.Primary.Label)
	desc := strings.ToLower(result.Description)
	for _, indicator := range fallbackIndicators {
		if strings.Contains(label, indicator) || strings.Contains(desc, indicator) {
			result.Primary.Label = "none"
			result.Primary.Confidence = 0
			break
		}
	}
	if label == "" {
		result.Primary.Label = "none"
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox clamps the box to [0,1], converting from pixels first when the
// model ignored the instructions and answered in pixels.
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = types.Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}
	b.X = clamp(b.X, 0, 1)
	b.Y = clamp(b.Y, 0, 1)
	b.W = clamp(b.W, 0, 1-b.X)
	b.H = clamp(b.H, 0, 1-b.Y)
	return b
}

// normalizeTags lowercases, dedupes and keeps at most five tags.
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
