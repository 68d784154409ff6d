// Package imageeditor provides crop selection and batch image transformation
// around a single editing session.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		imageeditor "github.com/menta2k/image-editor"
//		"github.com/menta2k/image-editor/pkg/types"
//	)
//
//	func main() {
//		ctx := context.Background()
//		ed, info, err := imageeditor.OpenFile(ctx, "photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer ed.Close()
//
//		// Lay the image out in an 800x600 overlay and crop to a selection
//		// made in overlay coordinates.
//		if _, err := ed.FitToOverlay(800, 600); err != nil {
//			log.Fatal(err)
//		}
//		ed.BeginCropWith(types.SelectionRect{X: 100, Y: 100, Width: 400, Height: 300})
//		if _, err := ed.CommitCrop(ctx); err != nil {
//			log.Fatal(err)
//		}
//
//		// Queue two operations and run them as one batch.
//		ed.SetBatchMode(true)
//		ed.Enqueue(types.KindBrightness, types.Params{"factor": 1.2})
//		ed.Enqueue(types.KindGrayscale, nil)
//		if _, err := ed.RunBatch(ctx, nil); err != nil {
//			log.Fatal(err)
//		}
//
//		log.Printf("%dx%d, %d history entries", info.Width, info.Height, len(ed.History()))
//	}
//
// The package consists of these main components:
//
//  1. Viewport (pkg/viewport): maps overlay selections to image pixels
//  2. Selection (pkg/selection): the pointer driven crop rectangle
//  3. Queue (pkg/queue) and Pipeline (pkg/pipeline): batch operations
//  4. History (pkg/history): bounded list of applied results
//  5. Editor (pkg/editor): one session tying the above together
//
// Operations run in process (pkg/processing) or on a remote image service
// (pkg/remote). Subject suggestions come from a vision model (pkg/ollama,
// pkg/llamacpp) or from local saliency analysis (pkg/vision).
package imageeditor

import (
	"context"
	"fmt"

	"github.com/menta2k/image-editor/pkg/artifact"
	"github.com/menta2k/image-editor/pkg/cropper"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/remote"
	"github.com/menta2k/image-editor/pkg/types"
)

// Version of the image editor library
const Version = "1.0.0"

// NewLocal creates an editor that processes images in process and keeps
// results in memory.
func NewLocal(cfg editor.Config, opts ...editor.Option) (*editor.Editor, error) {
	return editor.New(cfg, processing.NewService(nil), artifact.NewMemoryStore(), opts...)
}

// NewRemote creates an editor backed by the image service at baseURL.
func NewRemote(baseURL string, cfg editor.Config, opts ...editor.Option) (*editor.Editor, error) {
	rc := remote.DefaultConfig()
	rc.BaseURL = baseURL
	service, err := remote.NewClient(rc, nil, nil)
	if err != nil {
		return nil, err
	}
	return editor.New(cfg, service, artifact.NewMemoryStore(), opts...)
}

// OpenFile creates a local editor with the default configuration and loads
// the image at path, which may also be an http(s) URL.
func OpenFile(ctx context.Context, path string, opts ...editor.Option) (*editor.Editor, types.ImageInfo, error) {
	img, err := processing.Load(ctx, path)
	if err != nil {
		return nil, types.ImageInfo{}, fmt.Errorf("failed to load image: %w", err)
	}
	ed, err := NewLocal(editor.DefaultConfig(), opts...)
	if err != nil {
		return nil, types.ImageInfo{}, err
	}
	info, err := ed.Load(ctx, img)
	if err != nil {
		_ = ed.Close()
		return nil, types.ImageInfo{}, err
	}
	return ed, info, nil
}

// CropToAspectRatio crops the current image to the largest centred crop of
// the given ratio, shrunk by zoom.
func CropToAspectRatio(ctx context.Context, ed *editor.Editor, ratio cropper.AspectRatio, zoom float64) (editor.Result, error) {
	info, err := ed.Info()
	if err != nil {
		return editor.Result{}, err
	}
	box, err := cropper.Frame(types.CropBox{}, ratio, info.Width, info.Height, zoom)
	if err != nil {
		return editor.Result{}, err
	}
	return ed.ManualCrop(ctx, box.Left, box.Top, box.Width(), box.Height())
}

// SaveCurrent writes the current preview to path, converting it to the
// format implied by the extension.
func SaveCurrent(ctx context.Context, ed *editor.Editor, path string, quality int) error {
	current, err := ed.Current(ctx)
	if err != nil {
		return err
	}
	return processing.SaveAs(current, path, quality)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
