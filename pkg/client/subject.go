package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/image-editor/pkg/types"
)

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// FallbackSubject is the centred half-size box used when a model answer is
// unusable.
func FallbackSubject(label, description string, tags ...string) *types.AnalysisResult {
	return &types.AnalysisResult{
		Primary: types.Primary{
			Label:      label,
			Confidence: 0.1,
			Box:        types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			Cx:         0.5,
			Cy:         0.5,
		},
		Description: description,
		Tags:        append(tags, "fallback"),
	}
}

// ParseSubject extracts a subject locator answer from free-form model output.
// Malformed answers yield a fallback result rather than an error.
func ParseSubject(raw string) *types.AnalysisResult {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return FallbackSubject("unclear image", "Model returned non-JSON response", "unclear", "non-json")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return FallbackSubject("parse error", "Failed to parse model response", "parse-error")
	}

	if result.Primary.Box.W == 0 && result.Primary.Box.H == 0 {
		result.Primary.Box = types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}
	}
	if result.Primary.Cx == 0 && result.Primary.Cy == 0 {
		result.Primary.Cx = result.Primary.Box.X + result.Primary.Box.W/2
		result.Primary.Cy = result.Primary.Box.Y + result.Primary.Box.H/2
	}
	return &result
}

// SanitizeModelJSON strips code fences, comments and trailing commas, and
// keeps the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
