package dissolve

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(1280), cfg.Extent().Width)
	assert.Equal(t, 2, cfg.FramesInFlight)
}

func TestParseConfig_OverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
window:
  width: 640
  height: 480
fixed_step: 10ms
velocity: 0.5
level:
  - "#####"
  - "#P.E#"
  - "#####"
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, "dissolve", cfg.Window.Title, "unset fields keep defaults")
	assert.Equal(t, 10*time.Millisecond, cfg.FixedStep)
	assert.Equal(t, time.Second/60, cfg.TargetDt)
	assert.Equal(t, float32(0.5), cfg.Velocity)
	assert.Len(t, cfg.Level, 3)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"negative velocity": "velocity: -1",
		"unknown field":     "colour: red",
		"frames in flight":  "frames_in_flight: 0",
		"palette range":     "palette: [[2, 0, 0, 1]]",
		"bad level":         "level: [\"###\"]",
		"empty window":      "window: {width: 0, height: 10}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dissolve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: true\nmouse_sensitivity: 0.01\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, float32(0.01), cfg.MouseSensitivity)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
