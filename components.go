package dissolve

import (
	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/group"
	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is the primitive an entity draws. Every part carries its own group
// id.
type Mesh struct {
	Primitive core.Primitive
	Groups    []group.Id

	parts []core.DynamicPart
}

func newMesh(p core.Primitive, alloc *group.Allocator) Mesh {
	m := Mesh{Primitive: p, Groups: p.Instantiate(alloc)}
	m.parts = make([]core.DynamicPart, len(m.Groups))
	for i, g := range m.Groups {
		m.parts[i] = core.DynamicPart{Mesh: core.PartRef{Primitive: p, Part: i}, Group: g}
	}
	return m
}

// StaticDraw is level geometry. World is fixed at spawn; static entities
// have no core.Transform.
type StaticDraw struct {
	Color uint16
	World mgl32.Mat4
}

// DynamicDraw is drawn at the entity's core.Transform composed with Local.
type DynamicDraw struct {
	Color uint16
	Local mgl32.Mat4
}

// DynamicEraser erases the groups behind it. Hidden erasers are kept but
// not drawn.
type DynamicEraser struct {
	Local  mgl32.Mat4
	Hidden bool
}

// Spin turns the entity around Z, in radians per second.
type Spin struct {
	Rate float32
}

// Parent makes the entity's core.Transform follow Entity, offset by the
// entity's LocalTransform.
type Parent struct {
	Entity EntityId
}

// LocalTransform is the pose relative to Parent.
type LocalTransform struct {
	core.Transform
}
