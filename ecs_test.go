package dissolve

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float32 }
type velocity struct{ DX, DY float32 }
type tag struct{}

func TestEcs_AddEntity(t *testing.T) {
	ecs := NewEcs()
	empty := ecs.addEntity()
	withPos := ecs.addEntity(position{1, 2})

	assert.Equal(t, EntityId(1), empty, "ids start at 1")
	assert.True(t, ecs.Has(empty))
	assert.True(t, ecs.Has(withPos))
	assert.NotEqual(t, ecs.entityIndex[empty], ecs.entityIndex[withPos],
		"different component sets live in different archetypes")
	assert.Equal(t, 2, ecs.Len())

	p, ok := component[position](ecs, withPos)
	require.True(t, ok)
	assert.Equal(t, position{1, 2}, *p)
	_, ok = component[velocity](ecs, withPos)
	assert.False(t, ok)
}

func TestEcs_AddInvalidComponentPanics(t *testing.T) {
	ecs := NewEcs()
	assert.Panics(t, func() { ecs.addEntity(123) })
}

func TestEcs_AddComponentsMovesArchetype(t *testing.T) {
	ecs := NewEcs()
	id := ecs.addEntity(position{1, 2})
	other := ecs.addEntity(position{7, 7})
	before := ecs.entityIndex[id]

	require.NoError(t, ecs.addComponents(id, velocity{3, 4}, &tag{}))
	assert.NotEqual(t, before, ecs.entityIndex[id])
	assert.Len(t, ecs.archetypes[ecs.entityIndex[id]].componentData, 3)

	p, _ := component[position](ecs, id)
	v, _ := component[velocity](ecs, id)
	assert.Equal(t, position{1, 2}, *p, "existing components move along")
	assert.Equal(t, velocity{3, 4}, *v)

	o, _ := component[position](ecs, other)
	assert.Equal(t, position{7, 7}, *o, "neighbors keep their row")

	// overwriting keeps the archetype
	arch := ecs.entityIndex[id]
	require.NoError(t, ecs.addComponents(id, velocity{5, 6}))
	assert.Equal(t, arch, ecs.entityIndex[id])
	v, _ = component[velocity](ecs, id)
	assert.Equal(t, velocity{5, 6}, *v)

	assert.Error(t, ecs.addComponents(999, tag{}))
}

func TestEcs_RemoveComponents(t *testing.T) {
	ecs := NewEcs()
	id := ecs.addEntity(position{1, 2}, velocity{3, 4})

	require.NoError(t, ecs.removeComponents(id, velocity{}))
	_, ok := component[velocity](ecs, id)
	assert.False(t, ok)
	p, ok := component[position](ecs, id)
	require.True(t, ok)
	assert.Equal(t, position{1, 2}, *p)
}

func TestEcs_RemoveEntityRecyclesRow(t *testing.T) {
	ecs := NewEcs()
	a := ecs.addEntity(position{1, 1})
	ecs.addEntity(position{2, 2})

	assert.True(t, ecs.removeEntity(a))
	assert.False(t, ecs.removeEntity(a))
	assert.False(t, ecs.Has(a))

	arch := ecs.archetypes[ecs.entityIndex[a+1]]
	require.Len(t, arch.recycled, 1)
	assert.Equal(t, position{}, arch.componentData[identifyComponents1[position](ecs)].([]position)[0],
		"recycled rows are zeroed")

	c := ecs.addEntity(position{3, 3})
	assert.Greater(t, c, a, "ids are not reused")
	assert.Empty(t, arch.recycled)
	assert.Len(t, arch.owners, 2)
}

func TestEcs_ComponentRegistration(t *testing.T) {
	ecs := NewEcs()
	id1 := ecs.getComponentId(reflect.TypeOf(position{}))
	id2 := ecs.getComponentId(reflect.TypeOf(position{}))
	assert.Equal(t, id1, id2)
	assert.Equal(t, reflect.TypeOf(position{}), ecs.componentIdTypeMap[id1])
}

func TestEcs_ArchetypeKeys(t *testing.T) {
	assert.Equal(t, archetypeKey{1, 2, 3}, dedupAndSortArchetypeKey([]componentId{3, 1, 2, 1, 3}))

	a := archetypeKey{1, 2, 3}
	assert.Equal(t, archetypeKey{1, 2, 3, 4}, combineArchetypeKeys(a, []componentId{4, 3, 2, 1}))
	assert.Equal(t, archetypeKey{1, 2, 3}, a, "inputs are not modified")
	assert.Equal(t, getArchetypeId(archetypeKey{1, 2}), getArchetypeId(combineArchetypeKeys(archetypeKey{2}, archetypeKey{1})))
}

func TestQuery_Map(t *testing.T) {
	ecs := NewEcs()
	ecs.addEntity(position{1, 0})                       // position only
	id2 := ecs.addEntity(position{2, 0}, velocity{1, 0}) // both
	id3 := ecs.addEntity(position{3, 0}, velocity{2, 0}, tag{})
	ecs.addEntity(position{4, 0}, tag{})
	ecs.addEntity(velocity{5, 0})

	var ids []EntityId
	var xs []float32
	Query2[position, velocity]{ecs: ecs}.Map(func(id EntityId, p *position, v *velocity) bool {
		ids = append(ids, id)
		xs = append(xs, p.X)
		p.X += v.DX
		return true
	})
	assert.Equal(t, []EntityId{id2, id3}, ids)
	assert.Equal(t, []float32{2, 3}, xs)

	p, _ := component[position](ecs, id3)
	assert.Equal(t, float32(5), p.X, "components are updated in place")
}

func TestQuery_MapOptionalAndStop(t *testing.T) {
	ecs := NewEcs()
	ecs.addEntity(position{1, 0})
	ecs.addEntity(position{2, 0}, velocity{1, 0})

	var missing int
	Query2[position, velocity]{ecs: ecs}.Map(func(_ EntityId, p *position, v *velocity) bool {
		if v == nil {
			missing++
		}
		return true
	}, velocity{})
	assert.Equal(t, 1, missing)

	visits := 0
	Query1[position]{ecs: ecs}.Map(func(EntityId, *position) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits)
}

func TestQuery_MapSkipsRemovedRows(t *testing.T) {
	ecs := NewEcs()
	a := ecs.addEntity(position{1, 0}, velocity{}, tag{})
	b := ecs.addEntity(position{2, 0}, velocity{}, tag{})
	ecs.removeEntity(a)

	var ids []EntityId
	Query3[position, velocity, tag]{ecs: ecs}.Map(func(id EntityId, _ *position, _ *velocity, _ *tag) bool {
		ids = append(ids, id)
		return true
	})
	assert.Equal(t, []EntityId{b}, ids)
}
