package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-editor/internal/logging"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config holds the application configuration
type Config struct {
	Service ServiceConfig  `json:"service" yaml:"service"`
	Editor  EditorConfig   `json:"editor" yaml:"editor"`
	Vision  VisionConfig   `json:"vision" yaml:"vision"`
	Store   StoreConfig    `json:"store" yaml:"store"`
	Logging logging.Config `json:"logging" yaml:"logging"`
	Output  OutputConfig   `json:"output" yaml:"output"`
}

// ServiceConfig selects the image processing backend
type ServiceConfig struct {
	// Backend is "local" (in process) or "remote" (HTTP service)
	Backend          string `json:"backend" yaml:"backend"`
	URL              string `json:"url" yaml:"url"`
	Timeout          string `json:"timeout" yaml:"timeout"`
	BreakerThreshold int    `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown  string `json:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// TimeoutDuration parses Timeout.
func (s ServiceConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

// CooldownDuration parses BreakerCooldown.
func (s ServiceConfig) CooldownDuration() time.Duration {
	d, _ := time.ParseDuration(s.BreakerCooldown)
	return d
}

// EditorConfig holds the editing session limits
type EditorConfig struct {
	HistoryCapacity  int `json:"history_capacity" yaml:"history_capacity"`
	MinSelection     int `json:"min_selection" yaml:"min_selection"`
	HandleSize       int `json:"handle_size" yaml:"handle_size"`
	InitialSelection int `json:"initial_selection" yaml:"initial_selection"`
}

// VisionConfig holds configuration for subject suggestion
type VisionConfig struct {
	// Backend is "ollama", "llamacpp", "saliency" (local, no model) or "none"
	Backend string `json:"backend" yaml:"backend"`
	URL     string `json:"url" yaml:"url"`
	Model   string `json:"model" yaml:"model"`
}

// StoreConfig selects where results are kept
type StoreConfig struct {
	// Backend is "memory" or "badger"
	Backend string `json:"backend" yaml:"backend"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Quality       int    `json:"quality" yaml:"quality"`
	OutputDir     string `json:"output_dir" yaml:"output_dir"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	Suffix        string `json:"suffix" yaml:"suffix"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Backend:          "local",
			URL:              "http://localhost:8000",
			Timeout:          "60s",
			BreakerThreshold: 5,
			BreakerCooldown:  "30s",
		},
		Editor: EditorConfig{
			HistoryCapacity:  10,
			MinSelection:     50,
			HandleSize:       10,
			InitialSelection: 200,
		},
		Vision: VisionConfig{
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   "qwen2.5vl:7b",
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			Quality:       85,
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_edited",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, chosen by
// extension. ${VAR} and ${VAR:-default} references are expanded from the
// environment. Fields missing from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	data = []byte(ExpandEnv(string(data)))

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML or JSON file, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Service.Backend {
	case "local":
	case "remote":
		if c.Service.URL == "" {
			return fmt.Errorf("service.url is required for the remote backend")
		}
	default:
		return fmt.Errorf("service.backend must be local or remote, got %q", c.Service.Backend)
	}

	for name, v := range map[string]string{"service.timeout": c.Service.Timeout, "service.breaker_cooldown": c.Service.BreakerCooldown} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("%s must be a non-negative duration, got %q", name, v)
		}
	}

	if c.Service.BreakerThreshold < 0 {
		return fmt.Errorf("service.breaker_threshold must not be negative")
	}

	if c.Editor.HistoryCapacity < 1 {
		return fmt.Errorf("editor.history_capacity must be positive")
	}

	if c.Editor.MinSelection < 1 || c.Editor.HandleSize < 1 {
		return fmt.Errorf("editor.min_selection and editor.handle_size must be positive")
	}

	if c.Editor.InitialSelection < c.Editor.MinSelection {
		return fmt.Errorf("editor.initial_selection must be at least editor.min_selection")
	}

	switch c.Vision.Backend {
	case "ollama", "llamacpp", "saliency", "none", "":
	default:
		return fmt.Errorf("vision.backend must be ollama, llamacpp, saliency or none, got %q", c.Vision.Backend)
	}

	switch c.Store.Backend {
	case "memory", "badger", "":
	default:
		return fmt.Errorf("store.backend must be memory or badger, got %q", c.Store.Backend)
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-editor", "config.yaml")
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}
