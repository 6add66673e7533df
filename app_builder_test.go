package dissolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockModule struct {
	name string
	log  *[]string
}

func (m *MockModule) Install(app *App, commands *Commands) {
	*m.log = append(*m.log, m.name)
}

func TestAppBuilder_UseModule(t *testing.T) {
	var installed []string
	builder := NewAppBuilder()
	builder.UseModule(&MockModule{name: "a", log: &installed})
	assert.Len(t, builder.modules, 1)
	assert.Empty(t, installed, "modules install on Build")
}

func TestAppBuilder_Build_InstallsInOrder(t *testing.T) {
	var installed []string
	NewAppBuilder().
		UseModule(&MockModule{name: "a", log: &installed}, &MockModule{name: "b", log: &installed}).
		UseModule(&MockModule{name: "c", log: &installed}).
		Build()
	assert.Equal(t, []string{"a", "b", "c"}, installed)
}

func TestTimeModule_FixedStep(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	app := NewAppBuilder().
		UseModule(TimeModule{Now: func() time.Time { return start }, FixedStep: 50 * time.Millisecond}).
		Build()
	for i := 0; i < 4; i++ {
		require.NoError(t, app.Step())
	}
	clock, ok := Resource[Time](app)
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, clock.Dt)
	assert.Equal(t, start.Add(200*time.Millisecond), clock.Time)
	assert.Equal(t, uint64(4), clock.Frame)
	assert.InDelta(t, 0.05, clock.Seconds(), 1e-6)
}

func TestTimeModule_WallClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	app := NewAppBuilder().UseModule(TimeModule{Now: func() time.Time { return now }}).Build()
	now = now.Add(30 * time.Millisecond)
	require.NoError(t, app.Step())
	clock, _ := Resource[Time](app)
	assert.Equal(t, 30*time.Millisecond, clock.Dt)
}

func TestInputModule_EdgesAndQuit(t *testing.T) {
	var sample Input
	app := NewAppBuilder().
		UseModule(InputModule{Poll: func(in *Input) {
			in.Pressed = sample.Pressed
			in.MouseX, in.MouseY = sample.MouseX, sample.MouseY
		}}).
		Build()
	in, _ := Resource[Input](app)

	sample.Pressed[KeyTab] = true
	sample.MouseX, sample.MouseY = 10, 10
	require.NoError(t, app.Step())
	assert.True(t, in.JustPressed[KeyTab])
	assert.True(t, in.MouseCaptured)
	assert.Zero(t, in.MouseDeltaX, "no delta on the first captured sample")

	sample.MouseX, sample.MouseY = 14, 7
	require.NoError(t, app.Step())
	assert.False(t, in.JustPressed[KeyTab])
	assert.Equal(t, 4.0, in.MouseDeltaX)
	assert.Equal(t, -3.0, in.MouseDeltaY)

	sample.Pressed[KeyTab] = false
	require.NoError(t, app.Step())
	assert.True(t, in.JustReleased[KeyTab])
	assert.True(t, in.MouseCaptured)

	sample.Pressed[KeyEscape] = true
	require.NoError(t, app.Step())
	assert.True(t, app.Done())
}
