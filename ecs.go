package dissolve

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"reflect"
	"slices"
	"sync"
)

// EntityId addresses an entity within one Ecs. Ids start at 1 and are
// never reused by the same Ecs.
type EntityId uint64

type archetypeId uint64
type archetypeKey []componentId
type componentId uint32
type row int
type set[T comparable] = map[T]struct{}

// Ecs stores components grouped by archetype: every entity with the same
// component set lives in one archetype, one row per entity across typed
// component slices.
//
// Entities must not be added or removed while a query is mapping.
type Ecs struct {
	archetypes  map[archetypeId]*archetype
	archOrder   []*archetype
	entityIndex map[EntityId]archetypeId

	idGeneratorLock sync.Mutex
	entityIdCounter EntityId

	componentIdCounterLock sync.Mutex
	componentIdCounter     componentId
	componentTypeIdMap     map[reflect.Type]componentId
	componentIdTypeMap     map[componentId]reflect.Type
}

func NewEcs() *Ecs {
	return &Ecs{
		archetypes:         make(map[archetypeId]*archetype),
		entityIndex:        make(map[EntityId]archetypeId),
		componentTypeIdMap: make(map[reflect.Type]componentId),
		componentIdTypeMap: make(map[componentId]reflect.Type),
	}
}

type archetype struct {
	id       archetypeId
	key      archetypeKey
	entities map[EntityId]row
	// owners maps rows back to entities; recycled rows hold 0.
	owners        []EntityId
	componentData map[componentId]any // typed slices via reflection
	recycled      []row
}

// Len is the number of live entities.
func (ecs *Ecs) Len() int {
	return len(ecs.entityIndex)
}

func (ecs *Ecs) Has(entityId EntityId) bool {
	_, ok := ecs.entityIndex[entityId]
	return ok
}

func (ecs *Ecs) addEntity(components ...any) EntityId {
	entityId := ecs.nextEntityId()
	return ecs.insertEntity(entityId, components...)
}

func (ecs *Ecs) insertEntity(entityId EntityId, components ...any) EntityId {
	archId, _, arch := ecs.archetypeFromComponents(components...)

	row := ecs.archetypeReserveRow(arch)
	arch.entities[entityId] = row
	arch.owners[row] = entityId
	for _, component := range components {
		ecs.writeComponent(arch, row, component)
	}

	ecs.entityIndex[entityId] = archId
	return entityId
}

func (ecs *Ecs) removeEntity(entityId EntityId) bool {
	if !ecs.Has(entityId) {
		return false
	}
	ecs.recycleEntity(entityId)
	return true
}

// addComponents moves the entity to the archetype that also holds
// components. Components the entity already has are overwritten.
func (ecs *Ecs) addComponents(entityId EntityId, components ...any) error {
	srcArchId, ok := ecs.entityIndex[entityId]
	if !ok {
		return fmt.Errorf("add components: no entity %d", entityId)
	}
	srcArch := ecs.archetypes[srcArchId]
	srcRow := srcArch.entities[entityId]

	dstArchId, _, dstArch := ecs.archetypeFromExtraComponents(srcArch, components...)
	dstRow := ecs.archetypeReserveRow(dstArch)

	ecs.moveComponents(srcArch, srcRow, dstArch, dstRow)
	for _, component := range components {
		ecs.writeComponent(dstArch, dstRow, component)
	}

	ecs.recycleEntity(entityId)

	dstArch.entities[entityId] = dstRow
	dstArch.owners[dstRow] = entityId
	ecs.entityIndex[entityId] = dstArchId
	return nil
}

func (ecs *Ecs) removeComponents(entityId EntityId, components ...any) error {
	srcArchId, ok := ecs.entityIndex[entityId]
	if !ok {
		return fmt.Errorf("remove components: no entity %d", entityId)
	}
	srcArch := ecs.archetypes[srcArchId]
	srcRow := srcArch.entities[entityId]

	removeSet := make(set[componentId])
	for _, c := range components {
		cType := reflect.TypeOf(c)
		if cType.Kind() == reflect.Pointer {
			cType = cType.Elem()
		}
		removeSet[ecs.getComponentId(cType)] = struct{}{}
	}

	var dstKey archetypeKey
	for _, compId := range srcArch.key {
		if _, shouldRemove := removeSet[compId]; !shouldRemove {
			dstKey = append(dstKey, compId)
		}
	}

	dstArchId, dstArch := ecs.getOrMakeArchetype(dstKey)
	dstRow := ecs.archetypeReserveRow(dstArch)

	ecs.moveComponents(srcArch, srcRow, dstArch, dstRow)
	ecs.recycleEntity(entityId)

	dstArch.entities[entityId] = dstRow
	dstArch.owners[dstRow] = entityId
	ecs.entityIndex[entityId] = dstArchId
	return nil
}

// moveComponents copies the components both archetypes hold.
func (ecs *Ecs) moveComponents(srcArch *archetype, srcRow row, dstArch *archetype, dstRow row) {
	for _, componentId := range srcArch.key {
		dstData, ok := dstArch.componentData[componentId]
		if !ok {
			continue
		}
		srcValue := reflectSliceGet(srcArch.componentData[componentId], int(srcRow))
		reflectSliceSet(dstData, int(dstRow), srcValue)
	}
}

func (ecs *Ecs) writeComponent(dstArch *archetype, dstRow row, component any) {
	componentType := reflect.TypeOf(component)
	reflectValue := reflect.ValueOf(component)
	if componentType.Kind() == reflect.Pointer {
		componentType = componentType.Elem()
		reflectValue = reflectValue.Elem()
	}
	if componentType.Kind() != reflect.Struct {
		panic(fmt.Errorf("expected component to be a struct or a pointer to a struct, got %s", componentType))
	}

	componentId := ecs.getComponentId(componentType)
	reflectSliceSet(dstArch.componentData[componentId], int(dstRow), reflectValue)
}

// recycleEntity frees the entity's row. The row is zeroed so recycled
// slots do not keep component data alive.
func (ecs *Ecs) recycleEntity(entityId EntityId) {
	archId := ecs.entityIndex[entityId]
	arch := ecs.archetypes[archId]

	row := arch.entities[entityId]
	for _, componentId := range arch.key {
		reflectSliceSet(arch.componentData[componentId], int(row),
			reflect.Zero(ecs.componentIdTypeMap[componentId]))
	}
	arch.owners[row] = 0
	arch.recycled = append(arch.recycled, row)

	delete(arch.entities, entityId)
	delete(ecs.entityIndex, entityId)
}

func (ecs *Ecs) archetypeFromComponents(components ...any) (archetypeId, archetypeKey, *archetype) {
	archKey := ecs.getArchetypeKey(components...)
	archId, arch := ecs.getOrMakeArchetype(archKey)
	return archId, archKey, arch
}

func (ecs *Ecs) archetypeFromExtraComponents(srcArch *archetype, components ...any) (archetypeId, archetypeKey, *archetype) {
	dstArchKey := combineArchetypeKeys(
		srcArch.key,
		ecs.getArchetypeKey(components...),
	)

	dstArchId, dstArch := ecs.getOrMakeArchetype(dstArchKey)
	return dstArchId, dstArchKey, dstArch
}

func (ecs *Ecs) getOrMakeArchetype(key archetypeKey) (archetypeId, *archetype) {
	id := getArchetypeId(key)

	if arch, ok := ecs.archetypes[id]; ok {
		if !slices.Equal(arch.key, key) {
			panic(fmt.Sprintf("archetype id %d collides for keys %v and %v", id, arch.key, key))
		}
		return id, arch
	}

	arch := &archetype{
		id:            id,
		key:           key,
		entities:      make(map[EntityId]row),
		componentData: make(map[componentId]any),
	}
	for _, componentId := range arch.key {
		arch.componentData[componentId] = reflectSliceMake(
			ecs.componentIdTypeMap[componentId],
		)
	}

	ecs.archetypes[id] = arch
	ecs.archOrder = append(ecs.archOrder, arch)
	return id, arch
}

func (ecs *Ecs) archetypeReserveRow(arch *archetype) row {
	if len(arch.recycled) > 0 {
		row := arch.recycled[len(arch.recycled)-1]
		arch.recycled = arch.recycled[:len(arch.recycled)-1]
		return row
	}

	row := row(len(arch.owners))
	arch.owners = append(arch.owners, 0)
	for _, componentId := range arch.key {
		arch.componentData[componentId] = reflectSliceAppend(
			arch.componentData[componentId],
			reflect.Zero(ecs.componentIdTypeMap[componentId]),
		)
	}
	return row
}

// getArchetypeKey returns the sorted, deduplicated component ids of
// components. The archetype id is a hash of this key.
func (ecs *Ecs) getArchetypeKey(components ...any) archetypeKey {
	var res archetypeKey

	for _, component := range components {
		compType := reflect.TypeOf(component)
		if compType.Kind() == reflect.Pointer {
			compType = compType.Elem()
		}
		if compType.Kind() != reflect.Struct {
			panic(fmt.Sprintf("component %s should be a struct", compType))
		}

		res = append(res, ecs.getComponentId(compType))
	}

	return dedupAndSortArchetypeKey(res)
}

func combineArchetypeKeys(a archetypeKey, b archetypeKey) archetypeKey {
	return dedupAndSortArchetypeKey(append(slices.Clone(a), b...))
}

func dedupAndSortArchetypeKey(key archetypeKey) archetypeKey {
	res := slices.Clone(key)
	slices.Sort(res)
	return slices.Compact(res)
}

func getArchetypeId(key archetypeKey) archetypeId {
	hash := fnv.New64a()
	b := make([]byte, 4)
	for _, componentId := range key {
		binary.LittleEndian.PutUint32(b, uint32(componentId))
		hash.Write(b)
	}
	return archetypeId(hash.Sum64())
}

func (ecs *Ecs) nextEntityId() EntityId {
	ecs.idGeneratorLock.Lock()
	defer ecs.idGeneratorLock.Unlock()

	ecs.entityIdCounter++
	return ecs.entityIdCounter
}

func (ecs *Ecs) getComponentId(componentType reflect.Type) componentId {
	ecs.componentIdCounterLock.Lock()
	defer ecs.componentIdCounterLock.Unlock()

	if id, ok := ecs.componentTypeIdMap[componentType]; ok {
		return id
	}
	id := ecs.componentIdCounter
	ecs.componentIdCounter++

	ecs.componentTypeIdMap[componentType] = id
	ecs.componentIdTypeMap[id] = componentType
	return id
}

// component returns the entity's component of type T, addressed in place.
// The pointer is valid until the entity changes archetype.
func component[T any](ecs *Ecs, entityId EntityId) (*T, bool) {
	archId, ok := ecs.entityIndex[entityId]
	if !ok {
		return nil, false
	}
	arch := ecs.archetypes[archId]
	data, ok := arch.componentData[ecs.getComponentId(reflect.TypeOf((*T)(nil)).Elem())]
	if !ok {
		return nil, false
	}
	return &data.([]T)[arch.entities[entityId]], true
}

func reflectSliceMake(elem reflect.Type) any {
	return reflect.MakeSlice(reflect.SliceOf(elem), 0, 1).Interface()
}

func reflectSliceGet(slice any, idx int) reflect.Value {
	return reflect.ValueOf(slice).Index(idx)
}

func reflectSliceSet(slice any, idx int, val reflect.Value) {
	reflect.ValueOf(slice).Index(idx).Set(val)
}

func reflectSliceAppend(slice any, val reflect.Value) any {
	return reflect.Append(
		reflect.ValueOf(slice),
		val,
	).Interface()
}
