package dissolve

// Key identifies the inputs the game reads.
type Key int

const (
	KeyW Key = iota
	KeyA
	KeyS
	KeyD
	KeyE
	KeyTab
	KeyEscape
	MouseButtonLeft
	keyCount
)

// Input is the per-step input state. A platform poller fills Pressed and
// the mouse position; the input system derives edges and deltas.
type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool

	MouseX, MouseY           float64
	MouseDeltaX, MouseDeltaY float64
	MouseCaptured            bool

	// CloseRequested is set by the platform when the window is closing.
	CloseRequested bool

	prev   [keyCount]bool
	primed bool
}

// Poller samples the platform into in: Pressed, MouseX/MouseY and
// CloseRequested.
type Poller func(in *Input)

// InputModule installs Input and polls it in PreUpdate. A nil Poll leaves
// Input to be driven directly, as tests do.
type InputModule struct {
	Poll Poller
}

func (mod InputModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Input{})
	poll := mod.Poll
	cmd.UseSystem(System(func(in *Input, cmd *Commands) {
		lastX, lastY := in.MouseX, in.MouseY
		if poll != nil {
			poll(in)
		}
		in.update(lastX, lastY)
		if in.CloseRequested || in.JustPressed[KeyEscape] {
			cmd.Quit(nil)
		}
	}).InStage(PreUpdate))
}

func (in *Input) update(lastX, lastY float64) {
	for k := range in.Pressed {
		in.JustPressed[k] = in.Pressed[k] && !in.prev[k]
		in.JustReleased[k] = !in.Pressed[k] && in.prev[k]
	}
	in.prev = in.Pressed
	if in.JustPressed[KeyTab] {
		in.MouseCaptured = !in.MouseCaptured
	}
	if in.MouseCaptured && in.primed {
		in.MouseDeltaX = in.MouseX - lastX
		in.MouseDeltaY = in.MouseY - lastY
	} else {
		in.MouseDeltaX = 0
		in.MouseDeltaY = 0
	}
	in.primed = true
}
