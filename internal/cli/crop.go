package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/cropper"
	"github.com/menta2k/image-editor/pkg/detection"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/selection"
	"github.com/menta2k/image-editor/pkg/types"
)

type cropOptions struct {
	overlay string
	rect    string
	aspect  string
	zoom    float64
	suggest bool
	debug   bool
}

func (a *App) newCropCmd() *cobra.Command {
	opts := &cropOptions{}

	cmd := &cobra.Command{
		Use:   "crop <image>",
		Short: "Crop an image to a selection made on a display overlay",
		Long: `Crop an image the way the interactive editor does: the image is laid out
inside an overlay of --overlay size, a selection is made in overlay
coordinates with --rect, and the selection is mapped back to image pixels.

Without --rect the default centred selection is used, or the suggested
subject with --suggest. With --aspect a crop of that ratio is framed around
the subject (or the image centre) instead.

Examples:
  image-editor crop photo.jpg --overlay 800x600 --rect 200,100,400,300
  image-editor crop photo.jpg --suggest --vision saliency --debug
  image-editor crop photo.jpg --aspect 16:9 --suggest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrop(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.overlay, "overlay", "", "Overlay size WxH (default: the image size)")
	cmd.Flags().StringVar(&opts.rect, "rect", "", "Selection x,y,w,h in overlay pixels")
	cmd.Flags().StringVar(&opts.aspect, "aspect", "", "Frame a crop of this ratio (W:H or square, portrait, landscape, widescreen, instagram, story)")
	cmd.Flags().Float64Var(&opts.zoom, "zoom", 1, "Shrink factor for --aspect crops (0..1]")
	cmd.Flags().BoolVar(&opts.suggest, "suggest", false, "Start from the subject suggested by the vision backend")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Also write the source with the crop box drawn on it")
	cmd.MarkFlagsMutuallyExclusive("rect", "aspect")
	return cmd
}

func (a *App) runCrop(ctx context.Context, source string, opts *cropOptions) error {
	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	img, info, err := s.load(ctx, source)
	if err != nil {
		return err
	}
	if opts.overlay != "" {
		w, h, err := parseSize(opts.overlay)
		if err != nil {
			return err
		}
		if _, err := s.editor.FitToOverlay(w, h); err != nil {
			return err
		}
	}

	var (
		box     types.CropBox
		subject *types.CropBox
	)
	if opts.aspect != "" {
		ratio, err := cropper.ParseAspectRatio(opts.aspect)
		if err != nil {
			return err
		}
		var around types.CropBox
		if opts.suggest {
			sug, err := a.suggestion(ctx, s)
			if err != nil {
				return err
			}
			if sug.Found() {
				around = sug.Box
				subject = &sug.Box
			}
			s.editor.CancelCrop()
		}
		box, err = cropper.Frame(around, ratio, info.Width, info.Height, opts.zoom)
		if err != nil {
			return err
		}
		if _, err := s.editor.ManualCrop(ctx, box.Left, box.Top, box.Width(), box.Height()); err != nil {
			return err
		}
	} else {
		snap, sub, err := a.beginSelection(ctx, s, opts)
		if err != nil {
			return err
		}
		subject = sub
		if box, err = s.editor.CropBox(snap.Rect); err != nil {
			return err
		}
		if _, err := s.editor.CommitCrop(ctx); err != nil {
			return err
		}
	}

	path, err := s.save(ctx, source, "", "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Crop [%d,%d,%d,%d] %dx%d: %s -> %s\n",
		box.Left, box.Top, box.Right, box.Bottom, box.Width(), box.Height(), source, path)

	if opts.debug {
		debugPath, err := a.writeDebugOverlay(s, source, img, box, subject)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Debug overlay: %s\n", debugPath)
	}
	return nil
}

// beginSelection enters crop mode from --rect, a suggestion or the default
// selection, in that order.
func (a *App) beginSelection(ctx context.Context, s *session, opts *cropOptions) (selection.Snapshot, *types.CropBox, error) {
	if opts.rect != "" {
		rect, err := parseRect(opts.rect)
		if err != nil {
			return selection.Snapshot{}, nil, err
		}
		snap, err := s.editor.BeginCropWith(rect)
		return snap, nil, err
	}
	if opts.suggest {
		snap, sug, err := s.editor.SuggestSelection(ctx)
		if err != nil {
			return selection.Snapshot{}, nil, err
		}
		if sug.Found() {
			return snap, &sug.Box, nil
		}
		return snap, nil, nil
	}
	snap, err := s.editor.BeginCrop()
	return snap, nil, err
}

func (a *App) suggestion(ctx context.Context, s *session) (detection.Suggestion, error) {
	_, sug, err := s.editor.SuggestSelection(ctx)
	if errors.Is(err, editor.ErrNoDetector) {
		return detection.Suggestion{}, fmt.Errorf("--suggest needs a vision backend: %w", err)
	}
	return sug, err
}

func (a *App) writeDebugOverlay(s *session, source string, img types.Artifact, box types.CropBox, subject *types.CropBox) (string, error) {
	raster, _, err := processing.Decode(img.Data)
	if err != nil {
		return "", err
	}
	overlay, err := processing.EncodeArtifact(processing.DebugOverlay(raster, box, subject), "png", 0)
	if err != nil {
		return "", err
	}
	out := s.cfg.Output
	path := utils.GenerateOutputFilename(source, out.OutputDir, out.Prefix, "_debug", "png")
	return path, processing.SaveFile(overlay, path)
}

// suggestReport is the suggest command output.
type suggestReport struct {
	Label       string              `json:"label"`
	Confidence  float64             `json:"confidence"`
	Box         types.CropBox       `json:"box"`
	Selection   types.SelectionRect `json:"selection"`
	Description string              `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
}

func (a *App) newSuggestCmd() *cobra.Command {
	var overlay string

	cmd := &cobra.Command{
		Use:   "suggest <image>",
		Short: "Suggest a crop selection around the subject of an image",
		Long: `Ask the vision backend where the subject of the image is and print the
suggested crop box in image pixels together with the selection it maps to
on an overlay of --overlay size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.close()

			if _, _, err := s.load(ctx, args[0]); err != nil {
				return err
			}
			if overlay != "" {
				w, h, err := parseSize(overlay)
				if err != nil {
					return err
				}
				if _, err := s.editor.FitToOverlay(w, h); err != nil {
					return err
				}
			}

			snap, sug, err := s.editor.SuggestSelection(ctx)
			if err != nil {
				return err
			}
			return a.printJSON(suggestReport{
				Label:       sug.Label,
				Confidence:  sug.Confidence,
				Box:         sug.Box,
				Selection:   snap.Rect,
				Description: sug.Description,
				Tags:        sug.Tags,
			})
		},
	}

	cmd.Flags().StringVar(&overlay, "overlay", "", "Overlay size WxH (default: the image size)")
	return cmd
}

// parseSize parses "WxH".
func parseSize(s string) (float64, float64, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, want WxH", s)
	}
	nums, err := parseFloats(w, h)
	if err != nil || nums[0] <= 0 || nums[1] <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q, want WxH", s)
	}
	return nums[0], nums[1], nil
}

// parseRect parses "x,y,w,h".
func parseRect(s string) (types.SelectionRect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.SelectionRect{}, fmt.Errorf("invalid rect %q, want x,y,w,h", s)
	}
	nums, err := parseFloats(parts...)
	if err != nil {
		return types.SelectionRect{}, fmt.Errorf("invalid rect %q: %w", s, err)
	}
	return types.SelectionRect{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, nil
}

func parseFloats(values ...string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
