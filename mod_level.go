package dissolve

import (
	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/group"
	"github.com/go-gl/mathgl/mgl32"
)

// LevelModule parses the maze, spawns it and installs the Maze, World and
// group Allocator resources. Bodies with a Spin turn every step.
type LevelModule struct {
	Rows []string
}

func (mod LevelModule) Install(app *App, cmd *Commands) {
	log := app.Logger()
	maze, err := ParseMaze(mod.Rows)
	if err != nil {
		log.Errorf("level: %v", err)
		cmd.Quit(err)
		return
	}
	alloc := group.New(log)
	world := NewWorld(cmd.Ecs(), alloc, log)
	if err := maze.Build(world); err != nil {
		log.Errorf("level: %v", err)
		cmd.Quit(err)
		return
	}
	log.Infof("level: %dx%d maze, %d entities, %d groups", maze.Width, maze.Height, world.Len(), alloc.Issued())

	cmd.AddResources(maze, world, alloc)
	cmd.UseSystem(System(spinSystem).InStage(Update))
}

func spinSystem(cmd *Commands, t *Time) {
	dt := t.Seconds()
	MakeQuery2[core.Transform, Spin](cmd).Map(func(_ EntityId, body *core.Transform, spin *Spin) bool {
		turn := mgl32.QuatRotate(spin.Rate*dt, mgl32.Vec3{0, 0, 1})
		body.Rotation = turn.Mul(body.Rotation).Normalize()
		return true
	})
}
