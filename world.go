package dissolve

import (
	"fmt"

	"github.com/gekko3d/dissolve/render/core"
	"github.com/gekko3d/dissolve/render/group"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/kamstrup/intmap"
)

// World spawns drawable entities into an Ecs and tracks the group ids
// issued to them.
//
// Callers address entities by uuid. Entity ids restart with every Ecs, so
// a handle kept across a level rebuild can never reach a newer entity.
type World struct {
	ecs     *Ecs
	log     Logger
	alloc   *group.Allocator
	handles map[uuid.UUID]EntityId
	names   map[EntityId]uuid.UUID
	owners  *intmap.Map[group.Id, EntityId]
	crowded bool
}

// CrowdedGroups is the live group count above which the world warns that
// new ids will alias live ones.
const CrowdedGroups = group.Capacity * 9 / 10

// NewWorld spawns into ecs; a nil ecs or alloc gets a fresh one.
func NewWorld(ecs *Ecs, alloc *group.Allocator, log Logger) *World {
	if ecs == nil {
		ecs = NewEcs()
	}
	if alloc == nil {
		alloc = group.New(log)
	}
	return &World{
		ecs:     ecs,
		log:     core.OrNop(log),
		alloc:   alloc,
		handles: make(map[uuid.UUID]EntityId),
		names:   make(map[EntityId]uuid.UUID),
		owners:  intmap.New[group.Id, EntityId](1024),
	}
}

func (w *World) Allocator() *group.Allocator {
	return w.alloc
}

// Len is the number of entities spawned through w.
func (w *World) Len() int {
	return len(w.handles)
}

// LiveGroups is the number of group ids owned by live entities.
func (w *World) LiveGroups() int {
	return w.owners.Len()
}

// Owner returns the live entity holding g.
func (w *World) Owner(g group.Id) (uuid.UUID, bool) {
	eid, ok := w.owners.Get(g)
	if !ok {
		return uuid.Nil, false
	}
	return w.names[eid], true
}

// Entity resolves a handle to its entity id.
func (w *World) Entity(id uuid.UUID) (EntityId, bool) {
	eid, ok := w.handles[id]
	return eid, ok
}

// Component returns the entity's component of type T in place. The
// pointer is valid until the entity gains or loses a component.
func Component[T any](w *World, id uuid.UUID) (*T, bool) {
	eid, ok := w.handles[id]
	if !ok {
		return nil, false
	}
	return component[T](w.ecs, eid)
}

// SpawnStatic places level geometry. m is the full world transform.
func (w *World) SpawnStatic(p core.Primitive, color uint16, m mgl32.Mat4) (uuid.UUID, error) {
	return w.spawn("static", p, StaticDraw{Color: color, World: m})
}

func (w *World) SpawnDynamic(p core.Primitive, color uint16, body core.Transform, local mgl32.Mat4) (uuid.UUID, error) {
	return w.spawn("dynamic", p, body, DynamicDraw{Color: color, Local: local})
}

func (w *World) SpawnEraser(p core.Primitive, body core.Transform, local mgl32.Mat4) (uuid.UUID, error) {
	return w.spawn("eraser", p, body, DynamicEraser{Local: local})
}

// SpawnPivot spawns an undrawn body for other entities to follow.
func (w *World) SpawnPivot(body core.Transform) uuid.UUID {
	return w.name(w.ecs.addEntity(body))
}

func (w *World) spawn(kind string, p core.Primitive, components ...any) (uuid.UUID, error) {
	if !p.Valid() {
		return uuid.Nil, fmt.Errorf("spawn %s: unknown primitive %v", kind, p)
	}
	mesh := newMesh(p, w.alloc)
	eid := w.ecs.addEntity(append([]any{mesh}, components...)...)
	id := w.name(eid)

	for _, g := range mesh.Groups {
		if prev, ok := w.owners.Get(g); ok {
			w.log.Warnf("world: group %d reissued to %s while %s is alive; they share decay", g, id, w.names[prev])
		}
		w.owners.Put(g, eid)
	}
	if n := w.owners.Len(); n > CrowdedGroups && !w.crowded {
		w.crowded = true
		w.log.Warnf("world: %d of %d group ids are live", n, group.Capacity)
	}
	return id, nil
}

func (w *World) name(eid EntityId) uuid.UUID {
	id := uuid.New()
	w.handles[id] = eid
	w.names[eid] = id
	return id
}

func (w *World) Despawn(id uuid.UUID) error {
	eid, ok := w.handles[id]
	if !ok {
		return fmt.Errorf("despawn: no entity %s", id)
	}
	if mesh, ok := component[Mesh](w.ecs, eid); ok {
		for _, g := range mesh.Groups {
			if owner, ok := w.owners.Get(g); ok && owner == eid {
				w.owners.Del(g)
			}
		}
	}
	w.ecs.removeEntity(eid)
	delete(w.handles, id)
	delete(w.names, eid)
	if w.owners.Len() <= CrowdedGroups {
		w.crowded = false
	}
	return nil
}

// SetBody moves a dynamic entity, an eraser or a pivot.
func (w *World) SetBody(id uuid.UUID, body core.Transform) error {
	t, ok := Component[core.Transform](w, id)
	if !ok {
		if _, known := w.handles[id]; known {
			return fmt.Errorf("set body: %s has no body", id)
		}
		return fmt.Errorf("set body: no entity %s", id)
	}
	*t = body
	return nil
}

// Attach adds components to an entity, replacing those it already has.
func (w *World) Attach(id uuid.UUID, components ...any) error {
	eid, ok := w.handles[id]
	if !ok {
		return fmt.Errorf("attach: no entity %s", id)
	}
	return w.ecs.addComponents(eid, components...)
}

// SetParent makes child follow parent at offset local.
func (w *World) SetParent(child, parent uuid.UUID, local core.Transform) error {
	pid, ok := w.handles[parent]
	if !ok {
		return fmt.Errorf("set parent: no entity %s", parent)
	}
	if _, ok := component[core.Transform](w.ecs, pid); !ok {
		return fmt.Errorf("set parent: %s has no body", parent)
	}
	if child == parent {
		return fmt.Errorf("set parent: %s cannot follow itself", child)
	}
	return w.Attach(child, Parent{Entity: pid}, LocalTransform{Transform: local})
}

// Snapshot fills in with this frame's draws. Dynamic and eraser world
// transforms are their body composed with Local.
func (w *World) Snapshot(in *core.FrameInput) {
	in.Reset()
	Query2[Mesh, StaticDraw]{ecs: w.ecs}.Map(func(_ EntityId, mesh *Mesh, s *StaticDraw) bool {
		for _, p := range mesh.parts {
			in.Statics = append(in.Statics, core.StaticDraw{Mesh: p.Mesh, Group: p.Group, Color: s.Color, World: s.World})
		}
		return true
	})
	Query3[core.Transform, Mesh, DynamicDraw]{ecs: w.ecs}.Map(func(_ EntityId, body *core.Transform, mesh *Mesh, d *DynamicDraw) bool {
		in.Dynamics = append(in.Dynamics, core.DynamicDraw{Parts: mesh.parts, Color: d.Color, World: body.Compose(d.Local)})
		return true
	})
	Query3[core.Transform, Mesh, DynamicEraser]{ecs: w.ecs}.Map(func(_ EntityId, body *core.Transform, mesh *Mesh, e *DynamicEraser) bool {
		if e.Hidden {
			return true
		}
		m := body.Compose(e.Local)
		for _, p := range mesh.parts {
			in.Erasers = append(in.Erasers, core.DynamicEraser{Mesh: p.Mesh, Group: p.Group, World: m})
		}
		return true
	})
}
