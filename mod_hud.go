package dissolve

import (
	"fmt"
	"time"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/group"
)

// FpsCounter averages frame times over a sliding window.
type FpsCounter struct {
	window  time.Duration
	elapsed time.Duration
	frames  int
	fps     float32
}

func NewFpsCounter(window time.Duration) *FpsCounter {
	return &FpsCounter{window: window}
}

// Add records one frame of length dt. The rate is refreshed once per
// window.
func (c *FpsCounter) Add(dt time.Duration) {
	c.elapsed += dt
	c.frames++
	if c.elapsed >= c.window {
		c.fps = float32(c.frames) / float32(c.elapsed.Seconds())
		c.elapsed = 0
		c.frames = 0
	}
}

func (c *FpsCounter) Fps() float32 {
	return c.fps
}

// HUD draws frame statistics in the top-left corner.
type HUD struct {
	Visible bool
	overlay *core.Overlay
	fps     *FpsCounter
	items   []core.TextItem
}

type HUDModule struct {
	Hidden bool
}

// Install must come after RenderModule so the HUD lines are added to the
// frame input after the world snapshot.
func (mod HUDModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&HUD{
		Visible: !mod.Hidden,
		overlay: core.NewOverlay(),
		fps:     NewFpsCounter(time.Second),
	})
	cmd.UseSystem(System(hudSystem).InStage(PreRender))
}

func hudSystem(h *HUD, t *Time, r *Renderer, world *World, alloc *group.Allocator) {
	h.fps.Add(t.Dt)
	if !h.Visible {
		return
	}
	white := [4]float32{1, 1, 1, 1}
	h.items = append(h.items[:0],
		core.TextItem{Text: fmt.Sprintf("fps %.0f", h.fps.Fps()), Position: [2]float32{8, 8}, Scale: 2, Color: white},
		core.TextItem{
			Text:     fmt.Sprintf("frame %d\ngroups %d live, %d issued", r.Scheduler.Frames(), world.LiveGroups(), alloc.Issued()),
			Position: [2]float32{8, 36},
			Scale:    1,
			Color:    white,
		},
	)
	r.Input.Overlay = h.overlay.Build(r.Input.Overlay, h.items, r.Extent())
}
