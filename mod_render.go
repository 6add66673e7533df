package dissolve

import (
	"context"
	"fmt"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/frame"
	"github.com/gekko3d/dissolve/render/graph"
)

// Renderer owns the frame scheduler and the frame input rebuilt every
// step from the world and the player. Decay advances by Time.Dt.
type Renderer struct {
	Scheduler *frame.Scheduler
	Backend   frame.Backend
	Input     core.FrameInput
	Last      frame.Result
	// Results counts frames by outcome.
	Results map[frame.Result]uint64
}

// RequestResize may be called from the platform's resize callback.
func (r *Renderer) RequestResize(e core.Extent) {
	r.Scheduler.RequestResize(e)
}

func (r *Renderer) Extent() core.Extent {
	return r.Backend.Extent()
}

// Close waits for every in-flight frame.
func (r *Renderer) Close(ctx context.Context) error {
	return r.Scheduler.WaitIdle(ctx)
}

// RenderModule drives Backend with the scene graph once per step. A fatal
// frame stops the app with the frame error.
type RenderModule struct {
	Backend frame.Backend
	Config  Config
	// Options are applied after the ones derived from Config.
	Options []frame.Option
}

func (mod RenderModule) Install(app *App, cmd *Commands) {
	cfg := mod.Config
	opts := []frame.Option{
		frame.WithLogger(app.Logger()),
		frame.WithVelocity(cfg.Velocity),
		frame.WithTargetDt(cfg.TargetDt),
		frame.WithBackground(cfg.Background),
		frame.WithCursor(core.Extent{Width: 16, Height: 16}),
	}
	opts = append(opts, mod.Options...)

	r := &Renderer{
		Scheduler: frame.New(mod.Backend, graph.ScenePlan(), opts...),
		Backend:   mod.Backend,
		Results:   make(map[frame.Result]uint64),
	}
	cmd.AddResources(r)
	cmd.UseSystem(System(snapshotSystem).InStage(PreRender))
	cmd.UseSystem(System(renderSystem).InStage(Render))
}

func snapshotSystem(r *Renderer, world *World, p *Player, in *Input, t *Time) {
	world.Snapshot(&r.Input)
	r.Input.Dt = t.Dt
	r.Input.Camera = p.Camera()
	r.Input.CursorVisible = in.MouseCaptured
}

func renderSystem(cmd *Commands, r *Renderer) error {
	res, err := r.Scheduler.Frame(cmd.Context(), &r.Input)
	r.Last = res
	r.Results[res]++
	switch res {
	case frame.Fatal:
		return fmt.Errorf("frame %d: %w", r.Scheduler.Frames(), err)
	case frame.NeedsResize:
		cmd.Logger().Debugf("render: frame %d needs resize", r.Scheduler.Frames())
	}
	return nil
}
