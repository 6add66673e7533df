package dissolve

import (
	"reflect"
)

// Queries visit every entity holding the listed components, in archetype
// creation order and then row order. Components passed as optionals may be
// missing; their pointer is nil then. Returning false from the callback
// stops the walk.
type Query1[A any] struct{ ecs *Ecs }
type Query2[A, B any] struct{ ecs *Ecs }
type Query3[A, B, C any] struct{ ecs *Ecs }

func MakeQuery1[A any](cmd *Commands) Query1[A]             { return Query1[A]{ecs: cmd.app.ecs} }
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B]       { return Query2[A, B]{ecs: cmd.app.ecs} }
func MakeQuery3[A, B, C any](cmd *Commands) Query3[A, B, C] { return Query3[A, B, C]{ecs: cmd.app.ecs} }

// column is one component's typed slice within an archetype, or nil when
// the archetype lacks an optional component.
func column[T any](arch *archetype, id componentId, opt set[componentId]) (comps []T, present, ok bool) {
	if data, found := arch.componentData[id]; found {
		return data.([]T), true, true
	}
	if _, optional := opt[id]; optional {
		return nil, false, true
	}
	return nil, false, false
}

func at[T any](comps []T, present bool, r row) *T {
	if !present {
		return nil
	}
	return &comps[r]
}

func (q Query1[A]) Map(m func(EntityId, *A) bool, optionals ...any) {
	id1 := identifyComponents1[A](q.ecs)
	opt := identifyOptionals(q.ecs, optionals...)

	for _, arch := range q.ecs.archOrder {
		comps1, has1, ok := column[A](arch, id1, opt)
		if !ok {
			continue
		}
		for r, entityId := range arch.owners {
			if entityId == 0 {
				continue
			}
			if !m(entityId, at(comps1, has1, row(r))) {
				return
			}
		}
	}
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool, optionals ...any) {
	id1, id2 := identifyComponents2[A, B](q.ecs)
	opt := identifyOptionals(q.ecs, optionals...)

	for _, arch := range q.ecs.archOrder {
		comps1, has1, ok := column[A](arch, id1, opt)
		if !ok {
			continue
		}
		comps2, has2, ok := column[B](arch, id2, opt)
		if !ok {
			continue
		}
		for r, entityId := range arch.owners {
			if entityId == 0 {
				continue
			}
			if !m(entityId, at(comps1, has1, row(r)), at(comps2, has2, row(r))) {
				return
			}
		}
	}
}

func (q Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool, optionals ...any) {
	id1, id2, id3 := identifyComponents3[A, B, C](q.ecs)
	opt := identifyOptionals(q.ecs, optionals...)

	for _, arch := range q.ecs.archOrder {
		comps1, has1, ok := column[A](arch, id1, opt)
		if !ok {
			continue
		}
		comps2, has2, ok := column[B](arch, id2, opt)
		if !ok {
			continue
		}
		comps3, has3, ok := column[C](arch, id3, opt)
		if !ok {
			continue
		}
		for r, entityId := range arch.owners {
			if entityId == 0 {
				continue
			}
			if !m(entityId, at(comps1, has1, row(r)), at(comps2, has2, row(r)), at(comps3, has3, row(r))) {
				return
			}
		}
	}
}

func identifyOptionals(ecs *Ecs, components ...any) set[componentId] {
	res := make(set[componentId])
	for _, c := range components {
		t := reflect.TypeOf(c)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		res[ecs.getComponentId(t)] = struct{}{}
	}
	return res
}

func identifyComponents1[A any](ecs *Ecs) componentId {
	return ecs.getComponentId(reflect.TypeOf((*A)(nil)).Elem())
}

func identifyComponents2[A, B any](ecs *Ecs) (componentId, componentId) {
	return identifyComponents1[A](ecs), identifyComponents1[B](ecs)
}

func identifyComponents3[A, B, C any](ecs *Ecs) (componentId, componentId, componentId) {
	return identifyComponents1[A](ecs), identifyComponents1[B](ecs), identifyComponents1[C](ecs)
}
