package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Performance PerformanceConfig `toml:"performance"`
	Controls    ControlsConfig    `toml:"controls"`
	Graphics    GraphicsConfig    `toml:"graphics"`
	Scene       SceneConfig       `toml:"scene"`
	Logging     LoggingConfig     `toml:"logging"`
	Debug       DebugConfig       `toml:"debug"`
}

type PerformanceConfig struct {
	UpdateInterval time.Duration `toml:"update_interval"` // fixed simulation step, at most 33ms
	CapUpdateFPS   bool          `toml:"cap_update_fps"`  // sleep out the rest of each step
	CapRenderFPS   bool          `toml:"cap_render_fps"`  // sleep out the rest of each update interval
	MaxBatchSize   int           `toml:"max_batch_size"`  // instance buffer capacity per model
	MaxLights      int           `toml:"max_lights"`
	LoaderWorkers  int           `toml:"loader_workers"`
}

type ControlsConfig struct {
	MouseSensitivity float32 `toml:"mouse_sensitivity"`
	MotionSpeed      float32 `toml:"motion_speed"` // units per second
}

type GraphicsConfig struct {
	WindowWidth    int     `toml:"window_width"`
	WindowHeight   int     `toml:"window_height"`
	Backend        string  `toml:"backend"`         // "terminal" or "headless"
	HeadlessFrames int     `toml:"headless_frames"` // headless backend stops after this many frames
	FOV            float32 `toml:"fov"`             // vertical, degrees
}

type SceneConfig struct {
	Script    string `toml:"script"`
	ModelsDir string `toml:"models_dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
	File   string `toml:"file"`   // empty logs to stderr
}

type DebugConfig struct {
	Profile    string `toml:"profile"` // "", "cpu" or "mem"
	ProfileDir string `toml:"profile_dir"`
}

// Load reads the config at path over the defaults. A missing file is
// created holding the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := Write(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg as TOML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return f.Close()
}

func (c *Config) Validate() error {
	p := c.Performance
	switch {
	case p.UpdateInterval <= 0 || p.UpdateInterval > 33*time.Millisecond:
		return fmt.Errorf("%w: update_interval %s outside (0, 33ms]", ErrInvalid, p.UpdateInterval)
	case p.MaxBatchSize < 1:
		return fmt.Errorf("%w: max_batch_size %d < 1", ErrInvalid, p.MaxBatchSize)
	case p.MaxLights < 1 || p.MaxLights > 32:
		return fmt.Errorf("%w: max_lights %d outside [1, 32]", ErrInvalid, p.MaxLights)
	case p.LoaderWorkers < 1:
		return fmt.Errorf("%w: loader_workers %d < 1", ErrInvalid, p.LoaderWorkers)
	case c.Controls.MouseSensitivity < 1:
		return fmt.Errorf("%w: mouse_sensitivity %v < 1", ErrInvalid, c.Controls.MouseSensitivity)
	case c.Controls.MotionSpeed <= 0:
		return fmt.Errorf("%w: motion_speed %v <= 0", ErrInvalid, c.Controls.MotionSpeed)
	case c.Graphics.Backend != "terminal" && c.Graphics.Backend != "headless":
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Graphics.Backend)
	case c.Graphics.FOV <= 0 || c.Graphics.FOV >= 180:
		return fmt.Errorf("%w: fov %v outside (0, 180)", ErrInvalid, c.Graphics.FOV)
	}
	switch c.Debug.Profile {
	case "", "cpu", "mem":
	default:
		return fmt.Errorf("%w: unknown profile %q", ErrInvalid, c.Debug.Profile)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Performance: PerformanceConfig{
			UpdateInterval: 16 * time.Millisecond,
			CapUpdateFPS:   true,
			CapRenderFPS:   true,
			MaxBatchSize:   1000,
			MaxLights:      32,
			LoaderWorkers:  4,
		},
		Controls: ControlsConfig{
			MouseSensitivity: 1.0,
			MotionSpeed:      10.0,
		},
		Graphics: GraphicsConfig{
			WindowWidth:    1920,
			WindowHeight:   1080,
			Backend:        "terminal",
			HeadlessFrames: 600,
			FOV:            60,
		},
		Scene: SceneConfig{
			Script:    "data/scenes/default.lua",
			ModelsDir: "data/models",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Debug: DebugConfig{
			ProfileDir: "profiles",
		},
	}
}
