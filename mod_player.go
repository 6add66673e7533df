package dissolve

import (
	"math"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

const (
	EyeHeight    = 0.5
	PlayerRadius = 0.2
	// reach is how far in front of the eye the carried eraser floats.
	reach = 0.6
)

// Player is the first-person viewer. Yaw turns around Z from +X; pitch is
// clamped to straight up and down.
type Player struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32
	// Body is an undrawn pivot at the eye; Eraser follows it at arm's
	// reach and is shown while erasing.
	Body    uuid.UUID
	Eraser  uuid.UUID
	Erasing bool
}

// Look turns the view by a pointer delta in pixels.
func (p *Player) Look(dx, dy float32) {
	p.Yaw -= dx * p.Sensitivity
	p.Pitch -= dy * p.Sensitivity
	p.Pitch = mgl32.Clamp(p.Pitch, -math.Pi/2, math.Pi/2)
}

// Forward is the horizontal walking direction.
func (p *Player) Forward() mgl32.Vec3 {
	s, c := math.Sincos(float64(p.Yaw))
	return mgl32.Vec3{float32(c), float32(s), 0}
}

func (p *Player) Left() mgl32.Vec3 {
	s, c := math.Sincos(float64(p.Yaw))
	return mgl32.Vec3{-float32(s), float32(c), 0}
}

// Pose is the eye as a body whose +X axis is the aim.
func (p *Player) Pose() core.Transform {
	t := core.NewTransform()
	t.Position = p.Position
	t.Rotation = mgl32.QuatRotate(p.Yaw, mgl32.Vec3{0, 0, 1}).
		Mul(mgl32.QuatRotate(-p.Pitch, mgl32.Vec3{0, 1, 0}))
	return t
}

func (p *Player) Camera() core.Camera {
	cam := core.NewCamera(p.Position)
	cam.AimFromAngles(p.Yaw, p.Pitch)
	return cam
}

// Walk moves by d, sliding along walls one axis at a time.
func (p *Player) Walk(d mgl32.Vec3, maze *Maze) {
	next := p.Position
	next[0] += d.X()
	if maze == nil || !maze.Blocked(next, PlayerRadius) {
		p.Position = next
	}
	next = p.Position
	next[1] += d.Y()
	if maze == nil || !maze.Blocked(next, PlayerRadius) {
		p.Position = next
	}
}

// PlayerModule places the player at the maze start and drives it from
// Input. It needs LevelModule and InputModule installed first, and
// HierarchyModule for the carried eraser to follow.
type PlayerModule struct {
	Speed       float32
	Sensitivity float32
}

func (mod PlayerModule) Install(app *App, cmd *Commands) {
	if app.Done() {
		return
	}
	maze, ok := Resource[Maze](app)
	if !ok {
		panic("PlayerModule requires LevelModule")
	}
	world, _ := Resource[World](app)

	p := &Player{
		Position:    maze.Start.Center(EyeHeight),
		Speed:       mod.Speed,
		Sensitivity: mod.Sensitivity,
	}
	if err := p.spawn(world); err != nil {
		app.Logger().Errorf("player: %v", err)
		cmd.Quit(err)
		return
	}

	cmd.AddResources(p)
	cmd.UseSystem(System(playerControlSystem).InStage(Update))
	cmd.UseSystem(System(playerCarrySystem).InStage(Update))
}

func (p *Player) spawn(world *World) error {
	p.Body = world.SpawnPivot(p.Pose())
	id, err := world.SpawnEraser(core.Sphere, p.Pose(), mgl32.Scale3D(0.08, 0.08, 0.08))
	if err != nil {
		return err
	}
	p.Eraser = id

	offset := core.NewTransform()
	offset.Position = mgl32.Vec3{reach, 0, 0}
	if err := world.SetParent(id, p.Body, offset); err != nil {
		return err
	}
	e, _ := Component[DynamicEraser](world, id)
	e.Hidden = true
	return nil
}

func playerControlSystem(in *Input, t *Time, p *Player, maze *Maze) {
	p.Look(float32(in.MouseDeltaX), float32(in.MouseDeltaY))

	var dir mgl32.Vec3
	if in.Pressed[KeyW] {
		dir = dir.Add(p.Forward())
	}
	if in.Pressed[KeyS] {
		dir = dir.Sub(p.Forward())
	}
	if in.Pressed[KeyA] {
		dir = dir.Add(p.Left())
	}
	if in.Pressed[KeyD] {
		dir = dir.Sub(p.Left())
	}
	if dir.Len() > 0 {
		p.Walk(dir.Normalize().Mul(p.Speed*t.Seconds()), maze)
	}
	p.Erasing = in.Pressed[KeyE] || in.Pressed[MouseButtonLeft]
}

// playerCarrySystem moves the eye pivot and shows the eraser while
// erasing. The hierarchy places the eraser in PostUpdate.
func playerCarrySystem(p *Player, world *World) error {
	if err := world.SetBody(p.Body, p.Pose()); err != nil {
		return err
	}
	if e, ok := Component[DynamicEraser](world, p.Eraser); ok {
		e.Hidden = !p.Erasing
	}
	return nil
}
