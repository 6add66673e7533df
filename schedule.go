package dissolve

import (
	"fmt"
	"reflect"
	"slices"
)

type Stage struct {
	Name string
}

var (
	Prelude    = Stage{Name: "Prelude"}
	PreUpdate  = Stage{Name: "PreUpdate"}
	Update     = Stage{Name: "Update"}
	PostUpdate = Stage{Name: "PostUpdate"}
	PreRender  = Stage{Name: "PreRender"}
	Render     = Stage{Name: "Render"}
	PostRender = Stage{Name: "PostRender"}
	Finale     = Stage{Name: "Finale"}
)

func defaultStages() []Stage {
	return []Stage{Prelude, PreUpdate, Update, PostUpdate, PreRender, Render, PostRender, Finale}
}

type systemFn any

type systemScheduleBuilder struct {
	inStage Stage
	system  systemFn
}

// System wraps fn for UseSystem. Every parameter of fn must be a pointer
// to *Commands or to an installed resource; fn may return an error, which
// stops the app.
func System(fn systemFn) systemScheduleBuilder {
	return systemScheduleBuilder{
		system:  fn,
		inStage: Update,
	}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	sched.inStage = s
	return sched
}

type stagePosition int

const (
	stageBefore stagePosition = iota
	stageAfter
)

type stagePositionBuilder struct {
	position stagePosition
	target   Stage
}

func BeforeStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageBefore, target: s}
}

func AfterStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageAfter, target: s}
}

func (app *App) UseStage(stage Stage, where stagePositionBuilder) *App {
	idx := slices.IndexFunc(app.stages, func(s Stage) bool { return s.Name == where.target.Name })
	if idx < 0 {
		panic(fmt.Sprintf("Stage %v not found", where.target.Name))
	}
	if _, ok := app.systems[stage.Name]; ok {
		panic(fmt.Sprintf("Stage %v already exists", stage.Name))
	}
	if where.position == stageAfter {
		idx++
	}
	app.stages = slices.Insert(app.stages, idx, stage)
	app.systems[stage.Name] = nil
	return app
}

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()

func (app *App) UseSystem(system systemScheduleBuilder) *App {
	if _, ok := app.systems[system.inStage.Name]; !ok {
		panic(fmt.Sprintf("Stage %v doesn't exist", system.inStage.Name))
	}
	t := reflect.TypeOf(system.system)
	if t == nil || t.Kind() != reflect.Func {
		panic(fmt.Sprintf("system %v is not a function", t))
	}
	for i := 0; i < t.NumIn(); i++ {
		if t.In(i).Kind() != reflect.Pointer {
			panic(fmt.Sprintf("system %v: parameter %d is not a pointer", t, i))
		}
	}
	if t.NumOut() > 1 || (t.NumOut() == 1 && t.Out(0) != typeOfError) {
		panic(fmt.Sprintf("system %v: may only return error", t))
	}
	app.systems[system.inStage.Name] = append(app.systems[system.inStage.Name], system.system)
	return app
}
