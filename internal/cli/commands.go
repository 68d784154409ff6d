package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/types"
)

// imageReport is the info command output.
type imageReport struct {
	Source string `json:"source"`
	Format string `json:"format"`
	Mode   string `json:"mode"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   string `json:"size"`
}

func (a *App) newInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Show format, color mode and size of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.close()

			img, info, err := s.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report := imageReport{
				Source: args[0],
				Format: info.Format,
				Mode:   info.Mode,
				Width:  info.Width,
				Height: info.Height,
				Size:   utils.FormatFileSize(int64(len(img.Data))),
			}
			if jsonOutput {
				return a.printJSON(report)
			}
			fmt.Fprintf(a.stdout, "%s: %s %s %dx%d (%s)\n",
				report.Source, report.Format, report.Mode, report.Width, report.Height, report.Size)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <image> <kind> [key=value...]",
		Short: "Apply a single operation and write the result",
		Long: `Apply one operation to an image and write the result to the output directory.

Kinds: ` + strings.Join(kindNames(), ", ") + `

Examples:
  image-editor apply photo.jpg brightness factor=1.2
  image-editor apply photo.jpg resize width=800 height=600
  image-editor apply photo.jpg compress quality=70 format=webp`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := types.ParseKind(args[1])
			if err != nil {
				return err
			}
			params, err := parseParams(args[2:])
			if err != nil {
				return err
			}
			return a.runApply(cmd.Context(), args[0], kind, params)
		},
	}
	return cmd
}

func (a *App) runApply(ctx context.Context, source string, kind types.Kind, params types.Params) error {
	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	if _, _, err := s.load(ctx, source); err != nil {
		return err
	}
	res, err := s.editor.Apply(ctx, kind, params)
	if err != nil {
		return err
	}

	format := ""
	if kind == types.KindCompress {
		format = params.String("format")
	}
	path, err := s.save(ctx, source, format, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s: %s -> %s\n", res.Entry.Name(), source, path)
	return nil
}

// opsFile is the batch operations document.
type opsFile struct {
	Operations []struct {
		Kind   string         `yaml:"kind" json:"kind"`
		Params map[string]any `yaml:"params" json:"params"`
	} `yaml:"operations" json:"operations"`
}

func (a *App) newBatchCmd() *cobra.Command {
	var opsPath string

	cmd := &cobra.Command{
		Use:   "batch <image|dir>",
		Short: "Apply a queue of operations as one chained run",
		Long: `Queue the operations listed in a YAML or JSON file and run them as one batch.
Each step's output is the next step's input. A failing step leaves the
image unchanged and reports the failing step.

Example operations file:
  operations:
    - kind: brightness
      params: {factor: 1.2}
    - kind: grayscale
    - kind: resize
      params: {width: 800, height: 600}

When a directory is given every image under it is processed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := readOps(opsPath)
			if err != nil {
				return err
			}
			return a.runBatch(cmd.Context(), args[0], ops)
		},
	}

	cmd.Flags().StringVarP(&opsPath, "file", "f", "", "Operations file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readOps(path string) ([]types.Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}

	var doc opsFile
	if utils.GetFileExtension(path) == "json" {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse operations: %w", err)
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("%s lists no operations", path)
	}

	ops := make([]types.Operation, 0, len(doc.Operations))
	for i, op := range doc.Operations {
		kind, err := types.ParseKind(op.Kind)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		params := types.Params(op.Params).Clone()
		if err := kind.Validate(params); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, types.Operation{Kind: kind, Params: params})
	}
	return ops, nil
}

func (a *App) runBatch(ctx context.Context, target string, ops []types.Operation) error {
	sources := []string{target}
	if utils.DirExists(target) {
		files, err := utils.ListImageFiles(target)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no images found in %s", target)
		}
		sources = files
	}

	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	format := ""
	if last := ops[len(ops)-1]; last.Kind == types.KindCompress {
		format = last.Params.String("format")
	}

	var failed int
	for _, source := range sources {
		if err := a.batchOne(ctx, s, source, ops, format); err != nil {
			if len(sources) == 1 {
				return err
			}
			failed++
			fmt.Fprintf(a.stderr, "%s: %v\n", source, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(sources))
	}
	return nil
}

func (a *App) batchOne(ctx context.Context, s *session, source string, ops []types.Operation, format string) error {
	if _, _, err := s.load(ctx, source); err != nil {
		return err
	}
	s.editor.SetBatchMode(true)
	defer s.editor.SetBatchMode(false)
	for _, op := range ops {
		if _, err := s.editor.Enqueue(op.Kind, op.Params); err != nil {
			return err
		}
	}

	entry, err := s.editor.RunBatch(ctx, func(completed, total int) {
		logging.With(s.logger.Debug()).Add(logging.Step(completed, total)).Msg("batch progress")
		fmt.Fprintf(a.stderr, "  [%d/%d] %s\n", completed, total, source)
	})
	if err != nil {
		return err
	}

	path, err := s.save(ctx, source, format, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s (%d operations): %s -> %s\n", entry.Name(), len(ops), source, path)
	return nil
}

// parseParams turns key=value pairs into operation parameters. Numeric
// values become ints or floats, anything else stays a string.
func parseParams(args []string) (types.Params, error) {
	params := types.Params{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		if i, err := strconv.Atoi(value); err == nil {
			params[key] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = f
		} else {
			params[key] = value
		}
	}
	return params, nil
}

func kindNames() []string {
	kinds := types.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
