package cli

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/menta2k/image-editor/internal/config"
	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/internal/telemetry"
	"github.com/menta2k/image-editor/internal/utils"
	"github.com/menta2k/image-editor/pkg/artifact"
	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/detection"
	"github.com/menta2k/image-editor/pkg/editor"
	"github.com/menta2k/image-editor/pkg/llamacpp"
	"github.com/menta2k/image-editor/pkg/ollama"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/remote"
	"github.com/menta2k/image-editor/pkg/selection"
	"github.com/menta2k/image-editor/pkg/types"
	"github.com/menta2k/image-editor/pkg/vision"
)

// session is one editor wired from configuration and flags.
type session struct {
	cfg    *config.Config
	logger *bolt.Logger
	editor *editor.Editor
}

// loadConfig reads --config, or the default config file when it exists, and
// applies flag overrides.
func (a *App) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	path := a.opts.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	if a.opts.backend != "" {
		cfg.Service.Backend = a.opts.backend
	}
	if a.opts.serviceURL != "" {
		cfg.Service.URL = a.opts.serviceURL
	}
	if a.opts.vision != "" {
		cfg.Vision.Backend = a.opts.vision
	}
	if a.opts.store != "" {
		cfg.Store.Backend = a.opts.store
	}
	if a.opts.outDir != "" {
		cfg.Output.OutputDir = a.opts.outDir
	}
	if a.opts.logLevel != "" {
		cfg.Logging.Level = a.opts.logLevel
	}
	cfg.Logging.Output = a.stderr

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *App) openSession() (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Logging)
	logger := logging.Get()

	service, err := newService(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := artifact.Open(artifact.Config{Backend: cfg.Store.Backend})
	if err != nil {
		return nil, err
	}

	opts := []editor.Option{
		editor.WithLogger(logger),
		editor.WithMetrics(telemetry.New(telemetry.Config{Version: Version})),
	}
	if vc, err := newVisionClient(cfg); err != nil {
		_ = store.Close()
		return nil, err
	} else if vc != nil {
		opts = append(opts, editor.WithDetector(detection.NewDetector(vc, cfg.Vision.Model)))
	}

	ed, err := editor.New(editor.Config{
		HistoryCapacity: cfg.Editor.HistoryCapacity,
		Selection: selection.Config{
			MinSize:     float64(cfg.Editor.MinSelection),
			HandleSize:  float64(cfg.Editor.HandleSize),
			InitialSize: float64(cfg.Editor.InitialSelection),
		},
	}, service, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, editor: ed}, nil
}

func newService(cfg *config.Config, logger *bolt.Logger) (client.Service, error) {
	if cfg.Service.Backend == "remote" {
		return remote.NewClient(remote.Config{
			BaseURL:          cfg.Service.URL,
			Timeout:          cfg.Service.TimeoutDuration(),
			BreakerThreshold: cfg.Service.BreakerThreshold,
			BreakerCooldown:  cfg.Service.CooldownDuration(),
		}, nil, logger)
	}
	return processing.NewService(logger), nil
}

func newVisionClient(cfg *config.Config) (client.VisionClient, error) {
	switch cfg.Vision.Backend {
	case "ollama":
		return ollama.NewClient(cfg.Vision.URL, nil)
	case "llamacpp":
		return llamacpp.NewClient(cfg.Vision.URL, nil), nil
	case "saliency":
		return vision.New(), nil
	default:
		return nil, nil
	}
}

func (s *session) close() {
	if err := s.editor.Close(); err != nil {
		logging.With(s.logger.Warn()).Add(logging.ErrorField(err)).Msg("failed to close editor")
	}
}

// load reads source and makes it the editor's image.
func (s *session) load(ctx context.Context, source string) (types.Artifact, types.ImageInfo, error) {
	img, err := processing.Load(ctx, source)
	if err != nil {
		return types.Artifact{}, types.ImageInfo{}, err
	}
	info, err := s.editor.Load(ctx, img)
	if err != nil {
		return types.Artifact{}, types.ImageInfo{}, err
	}
	return img, info, nil
}

// save writes the current preview next to the configured output directory
// and returns the path. An empty format uses the configured default.
func (s *session) save(ctx context.Context, source, format, suffix string) (string, error) {
	current, err := s.editor.Current(ctx)
	if err != nil {
		return "", err
	}
	if format == "" {
		format = s.cfg.Output.DefaultFormat
	}
	out := s.cfg.Output
	path := utils.GenerateOutputFilename(source, out.OutputDir, out.Prefix, out.Suffix+suffix, format)
	if err := processing.SaveAs(current, path, out.Quality); err != nil {
		return "", err
	}

	logging.With(s.logger.Info()).
		Add(logging.Str("path", path), logging.Bytes(len(current.Data))).
		Msg("result written")
	return path, nil
}
