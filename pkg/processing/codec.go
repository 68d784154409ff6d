// Package processing implements the image operations in process with
// imaging, and provides the codecs the rest of the editor uses.
package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/types"
)

// maxDownloadBytes caps LoadURL bodies.
const maxDownloadBytes = 64 << 20

// NormalizeFormat maps format names and aliases ("JPG", "image/jpeg", ".png")
// to the lowercase names image.Decode reports.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	f = strings.TrimPrefix(f, "image/")
	f = strings.TrimPrefix(f, ".")
	switch f {
	case "jpg", "jpe", "jfif":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return f
}

// Decode decodes an encoded image, returning the detected format.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}

	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, "webp", nil
	}
	return nil, "", fmt.Errorf("image: unknown or unsupported format: %w", err)
}

// Encode encodes img in the given format. Quality applies to jpeg and webp.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	switch f := NormalizeFormat(format); f {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	case "png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("gif encode: %w", err)
		}
	default:
		imgFormat, err := imaging.FormatFromExtension(f)
		if err != nil {
			return nil, fmt.Errorf("unsupported output format %q", format)
		}
		if err := imaging.Encode(&buf, img, imgFormat); err != nil {
			return nil, fmt.Errorf("%s encode: %w", f, err)
		}
	}
	return buf.Bytes(), nil
}

// EncodeArtifact encodes img as an artifact.
func EncodeArtifact(img image.Image, format string, quality int) (types.Artifact, error) {
	data, err := Encode(img, format, quality)
	if err != nil {
		return types.Artifact{}, err
	}
	return types.Artifact{Data: data, Format: NormalizeFormat(format)}, nil
}

// LoadFile reads an image file. The format comes from the content, not the
// file name.
func LoadFile(path string) (types.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("failed to read image: %w", err)
	}
	return fromBytes(data, path)
}

// LoadURL downloads an image over http or https.
func LoadURL(ctx context.Context, imageURL string) (types.Artifact, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return types.Artifact{}, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "image-editor/1.0")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Artifact{}, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return types.Artifact{}, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return types.Artifact{}, fmt.Errorf("failed to read image data: %w", err)
	}
	return fromBytes(data, parsedURL.Path)
}

// Load reads an image from a file path or an http(s) URL.
func Load(ctx context.Context, source string) (types.Artifact, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return LoadURL(ctx, source)
	}
	return LoadFile(source)
}

// SaveFile writes the artifact to path, creating parent directories.
func SaveFile(a types.Artifact, path string) error {
	if a.Empty() {
		return fmt.Errorf("nothing to save")
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// SaveAs re-encodes the artifact when its format differs from the one
// implied by the path extension, then writes it.
func SaveAs(a types.Artifact, path string, quality int) error {
	want := NormalizeFormat(utils.GetFileExtension(path))
	if want == "" || want == a.Format {
		return SaveFile(a, path)
	}

	img, _, err := Decode(a.Data)
	if err != nil {
		return err
	}
	converted, err := EncodeArtifact(img, want, quality)
	if err != nil {
		return err
	}
	return SaveFile(converted, path)
}

func fromBytes(data []byte, name string) (types.Artifact, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if _, f, derr := Decode(data); derr == nil {
			format = f
		} else {
			return types.Artifact{}, fmt.Errorf("%s: %w", name, derr)
		}
	}
	return types.Artifact{Data: data, Format: format}, nil
}
