package dissolve

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gekko3d/dissolve/render/core"
	"gopkg.in/yaml.v3"
)

type WindowConfig struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
	Title  string `yaml:"title"`
}

// Config is read once at startup. Durations are written as Go duration
// strings ("16ms").
type Config struct {
	Window         WindowConfig  `yaml:"window"`
	TargetDt       time.Duration `yaml:"target_dt"`
	FixedStep      time.Duration `yaml:"fixed_step"`
	FramesInFlight int           `yaml:"frames_in_flight"`
	// Velocity is the fade speed of erased groups in decay units per
	// second.
	Velocity         float32      `yaml:"velocity"`
	Palette          [][4]float32 `yaml:"palette"`
	Background       [4]float32   `yaml:"background"`
	MouseSensitivity float32      `yaml:"mouse_sensitivity"`
	MoveSpeed        float32      `yaml:"move_speed"`
	Debug            bool         `yaml:"debug"`
	// Level is the maze layout, one string per row. See ParseMaze.
	Level []string `yaml:"level"`
}

var DefaultLevel = []string{
	"#########",
	"#P..#..E#",
	"#.#.#.#.#",
	"#.#...#1#",
	"#.###.#.#",
	"#..o..2.#",
	"#########",
}

func DefaultConfig() Config {
	return Config{
		Window:           WindowConfig{Width: 1280, Height: 720, Title: "dissolve"},
		TargetDt:         time.Second / 60,
		FramesInFlight:   2,
		Velocity:         1,
		Palette:          append([][4]float32(nil), core.DefaultPalette...),
		Background:       [4]float32{0, 0, 0, 1},
		MouseSensitivity: 0.002,
		MoveSpeed:        1.5,
		Level:            append([]string(nil), DefaultLevel...),
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d is empty", c.Window.Width, c.Window.Height))
	}
	if c.TargetDt <= 0 {
		errs = append(errs, fmt.Errorf("target_dt must be positive, got %v", c.TargetDt))
	}
	if c.FixedStep < 0 {
		errs = append(errs, fmt.Errorf("fixed_step must not be negative, got %v", c.FixedStep))
	}
	if c.FramesInFlight < 1 || c.FramesInFlight > 3 {
		errs = append(errs, fmt.Errorf("frames_in_flight must be 1..3, got %d", c.FramesInFlight))
	}
	if c.Velocity < 0 {
		errs = append(errs, fmt.Errorf("velocity must not be negative, got %v", c.Velocity))
	}
	if c.MouseSensitivity <= 0 {
		errs = append(errs, fmt.Errorf("mouse_sensitivity must be positive, got %v", c.MouseSensitivity))
	}
	for i, col := range c.Palette {
		for _, f := range col {
			if f < 0 || f > 1 {
				errs = append(errs, fmt.Errorf("palette[%d] %v out of [0, 1]", i, col))
				break
			}
		}
	}
	if _, err := ParseMaze(c.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Extent is the initial window size.
func (c Config) Extent() core.Extent {
	return core.Extent{Width: c.Window.Width, Height: c.Window.Height}
}

func (c Config) PaletteOrDefault() core.Palette {
	if len(c.Palette) == 0 {
		return core.DefaultPalette
	}
	return core.Palette(c.Palette)
}
