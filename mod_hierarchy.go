package dissolve

import (
	"github.com/gekko3d/dissolve/render/core"
)

// HierarchyModule keeps every entity with a Parent at its LocalTransform
// relative to the parent's body. It runs in PostUpdate, after gameplay has
// moved the parents.
type HierarchyModule struct{}

func (HierarchyModule) Install(app *App, cmd *Commands) {
	cmd.UseSystem(System(transformHierarchySystem).InStage(PostUpdate))
}

// maxHierarchyDepth bounds the propagation passes per step; chains deeper
// than this settle over several steps.
const maxHierarchyDepth = 8

func transformHierarchySystem(cmd *Commands) {
	ecs := cmd.app.ecs
	for pass := 0; pass < maxHierarchyDepth; pass++ {
		changed := false
		MakeQuery3[LocalTransform, Parent, core.Transform](cmd).Map(func(_ EntityId, local *LocalTransform, parent *Parent, world *core.Transform) bool {
			parentWorld, ok := component[core.Transform](ecs, parent.Entity)
			if !ok {
				return true
			}
			if next := parentWorld.Child(local.Transform); next != *world {
				*world = next
				changed = true
			}
			return true
		})
		if !changed {
			return
		}
	}
}
