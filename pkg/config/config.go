// Package config handles loading and saving pcv configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/pcv/config.yaml
//   - Data:    ~/.local/share/pcv/ (session store)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/photocluster/pkg/camera"
	"github.com/vanderheijden86/photocluster/pkg/export"
	"github.com/vanderheijden86/photocluster/pkg/highlight"
	"github.com/vanderheijden86/photocluster/pkg/layout"
	"github.com/vanderheijden86/photocluster/pkg/texture"
	"github.com/vanderheijden86/photocluster/pkg/visual"
)

const appName = "pcv"

// NamedDataset is a dataset location registered under a short name.
type NamedDataset struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"` // file path, URL or sqlite:<db>#<name>
}

// TextureConfig tunes image loading.
type TextureConfig struct {
	LowResSize           int           `yaml:"low_res_size"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	MaxConcurrentDecodes int           `yaml:"max_concurrent_decodes"`
	UserAgent            string        `yaml:"user_agent,omitempty"`
}

// QueueConfig tunes load priorities.
type QueueConfig struct {
	PreloadHighRes    int `yaml:"preload_high_res"`
	HighlightPriority int `yaml:"highlight_priority"`
}

// VisualConfig tunes node sizes and border colours.
type VisualConfig struct {
	BaseScale float64  `yaml:"base_scale"`
	ScaleStep float64  `yaml:"scale_step"`
	MaxScale  float64  `yaml:"max_scale"`
	Palette   []string `yaml:"palette"` // hex colours, one per highlight level 0..4
}

// CameraConfig tunes framing.
type CameraConfig struct {
	SettleDelay    time.Duration `yaml:"settle_delay"`
	FitPaddingPx   int           `yaml:"fit_padding_px"`
	Standoff       float64       `yaml:"standoff"`
	MinStandoff    float64       `yaml:"min_standoff"`
	Animation      time.Duration `yaml:"animation"`
	CentroidOffset float64       `yaml:"centroid_offset"`
}

// LayoutConfig tunes the force layout used for unplaced nodes.
type LayoutConfig struct {
	Iterations int     `yaml:"iterations"`
	Spread     float64 `yaml:"spread"`
}

// RenderConfig controls headless frames.
type RenderConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Background string `yaml:"background"`
	Format     string `yaml:"format"` // png or svg
}

// Config is the top-level configuration for pcv.
type Config struct {
	BaseURL  string         `yaml:"base_url"`
	Datasets []NamedDataset `yaml:"datasets,omitempty"`
	Texture  TextureConfig  `yaml:"texture"`
	Queue    QueueConfig    `yaml:"queue"`
	Visual   VisualConfig   `yaml:"visual"`
	Camera   CameraConfig   `yaml:"camera"`
	Layout   LayoutConfig   `yaml:"layout"`
	Render   RenderConfig   `yaml:"render"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	cam := camera.DefaultConfig()
	return Config{
		BaseURL: "http://localhost:5000",
		Texture: TextureConfig{
			LowResSize:           texture.DefaultLowResSize,
			FetchTimeout:         texture.DefaultFetchTimeout,
			MaxConcurrentDecodes: 8,
			UserAgent:            "pcv",
		},
		Queue: QueueConfig{
			PreloadHighRes:    5,
			HighlightPriority: highlight.DefaultPriority,
		},
		Visual: VisualConfig{
			BaseScale: visual.DefaultBaseScale,
			ScaleStep: visual.DefaultScaleStep,
			MaxScale:  visual.DefaultMaxScale,
			Palette:   append([]string(nil), visual.DefaultPaletteHex...),
		},
		Camera: CameraConfig{
			SettleDelay:    cam.SettleDelay,
			FitPaddingPx:   cam.FitPaddingPx,
			Standoff:       cam.Standoff,
			MinStandoff:    cam.MinStandoff,
			Animation:      cam.Animation,
			CentroidOffset: cam.CentroidOffset,
		},
		Layout: LayoutConfig{
			Iterations: 300,
			Spread:     200,
		},
		Render: RenderConfig{
			Width:      1280,
			Height:     800,
			Background: "#101020",
			Format:     "png",
		},
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Texture.LowResSize > 0, "texture.low_res_size must be positive")
	check(c.Texture.FetchTimeout > 0, "texture.fetch_timeout must be positive")
	check(c.Texture.MaxConcurrentDecodes > 0, "texture.max_concurrent_decodes must be positive")
	check(c.Queue.PreloadHighRes >= 0, "queue.preload_high_res must not be negative")
	check(c.Queue.HighlightPriority > c.Queue.PreloadHighRes,
		"queue.highlight_priority (%d) must exceed every preload priority (%d)", c.Queue.HighlightPriority, c.Queue.PreloadHighRes)
	check(c.Visual.BaseScale > 0 && c.Visual.MaxScale >= c.Visual.BaseScale, "visual scales must satisfy 0 < base_scale <= max_scale")
	check(c.Visual.ScaleStep >= 0, "visual.scale_step must not be negative")
	if _, err := visual.ParsePalette(c.Visual.Palette); err != nil {
		errs = append(errs, fmt.Errorf("visual.palette: %w", err))
	}
	check(c.Camera.SettleDelay > 0, "camera.settle_delay must be positive")
	check(c.Camera.Animation > 0, "camera.animation must be positive")
	check(c.Camera.Standoff > 0 && c.Camera.MinStandoff > 0, "camera stand-off distances must be positive")
	check(c.Layout.Iterations > 0, "layout.iterations must be positive")
	check(c.Render.Width > 0 && c.Render.Height > 0, "render size must be positive")
	check(c.Render.Format == "png" || c.Render.Format == "svg", "render.format must be png or svg, got %q", c.Render.Format)
	return errors.Join(errs...)
}

// VisualOptions converts the visual section. The palette must be valid.
func (c Config) VisualOptions() (visual.Config, error) {
	p, err := visual.ParsePalette(c.Visual.Palette)
	if err != nil {
		return visual.Config{}, err
	}
	return visual.Config{
		BaseScale: c.Visual.BaseScale,
		ScaleStep: c.Visual.ScaleStep,
		MaxScale:  c.Visual.MaxScale,
		Palette:   p,
		Priority:  c.Queue.HighlightPriority,
	}, nil
}

// CameraOptions converts the camera section.
func (c Config) CameraOptions() camera.Config {
	return camera.Config{
		SettleDelay:    c.Camera.SettleDelay,
		FitPaddingPx:   c.Camera.FitPaddingPx,
		Standoff:       c.Camera.Standoff,
		MinStandoff:    c.Camera.MinStandoff,
		Animation:      c.Camera.Animation,
		CentroidOffset: c.Camera.CentroidOffset,
	}
}

// TextureOptions converts the texture section.
func (c Config) TextureOptions() texture.Options {
	return texture.Options{
		LowResSize:   c.Texture.LowResSize,
		FetchTimeout: c.Texture.FetchTimeout,
	}
}

// LayoutOptions converts the layout section.
func (c Config) LayoutOptions() layout.Options {
	opts := layout.DefaultOptions()
	opts.Iterations = c.Layout.Iterations
	opts.Spread = c.Layout.Spread
	return opts
}

// RenderOptions converts the render section. The background must be a hex
// colour.
func (c Config) RenderOptions() (export.Options, error) {
	opts := export.DefaultOptions()
	opts.Width = c.Render.Width
	opts.Height = c.Render.Height
	if c.Render.Background != "" {
		bg, err := colorful.Hex(c.Render.Background)
		if err != nil {
			return opts, fmt.Errorf("render.background: %w", err)
		}
		r, g, b := bg.RGB255()
		opts.Background.R, opts.Background.G, opts.Background.B = r, g, b
		opts.Background.A = 0xff
	}
	return opts, nil
}

// ConfigDir returns the XDG config directory for pcv.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns the XDG data directory for pcv.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// SessionStorePath returns the default SQLite session store location.
func SessionStorePath() string {
	dir := DataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "sessions.db")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path. Missing keys keep their
// defaults. Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	// Expand ~ in dataset locations
	for i := range cfg.Datasets {
		cfg.Datasets[i].Location = expandHome(cfg.Datasets[i].Location)
	}

	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// FindDataset returns the dataset registered under name, or nil.
func (c Config) FindDataset(name string) *NamedDataset {
	for i := range c.Datasets {
		if strings.EqualFold(c.Datasets[i].Name, name) {
			return &c.Datasets[i]
		}
	}
	return nil
}

// ResolveDataset maps a registered dataset name to its location. Anything
// else is returned unchanged.
func (c Config) ResolveDataset(ref string) string {
	if d := c.FindDataset(ref); d != nil {
		return d.Location
	}
	return expandHome(ref)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
