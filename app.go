package dissolve

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
)

type Module interface {
	Install(app *App, cmd *Commands)
}

type App struct {
	stages    []Stage
	systems   map[string][]systemFn
	resources map[reflect.Type]any
	ecs       *Ecs
	logger    Logger
	ctx       context.Context

	steps   uint64
	quit    bool
	quitErr error
}

func newApp() *App {
	app := &App{
		stages:    defaultStages(),
		systems:   make(map[string][]systemFn),
		resources: make(map[reflect.Type]any),
		ecs:       NewEcs(),
	}
	for _, s := range app.stages {
		app.systems[s.Name] = nil
	}
	return app
}

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// Steps is the number of completed Step calls.
func (app *App) Steps() uint64 {
	return app.steps
}

// Done reports whether a system has asked the app to stop.
func (app *App) Done() bool {
	return app.quit
}

// Step runs every stage once. It returns the error of the first failing
// system; the app is then done.
func (app *App) Step() error {
	if app.quit {
		return app.quitErr
	}
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name] {
			if err := app.callSystem(system); err != nil {
				app.stop(fmt.Errorf("%s: %s: %w", stage.Name, systemName(system), err))
				return app.quitErr
			}
			if app.quit {
				return app.quitErr
			}
		}
	}
	app.steps++
	return nil
}

// Run steps until a system quits or ctx is done. A clean quit returns
// nil.
func (app *App) Run(ctx context.Context) error {
	app.Logger().Infof("running %d stages", len(app.stages))
	app.ctx = ctx
	defer func() { app.ctx = nil }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := app.Step(); err != nil {
			return err
		}
		if app.quit {
			return nil
		}
	}
}

// Context is the context passed to Run, or context.Background outside
// of it.
func (app *App) Context() context.Context {
	if app.ctx == nil {
		return context.Background()
	}
	return app.ctx
}

func (app *App) stop(err error) {
	if app.quit {
		return
	}
	app.quit = true
	app.quitErr = err
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("%s is not a pointer", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// Resource returns the installed resource of type *T.
func Resource[T any](app *App) (*T, bool) {
	r, ok := app.resources[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return nil, false
	}
	return r.(*T), true
}

var typeOfCommands = reflect.TypeOf(Commands{})

func (app *App) callSystem(system systemFn) error {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())
	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, ok := app.resources[underlyingType]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			panic(fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
				systemName(system), systemType, argType))
		}
	}
	out := systemValue.Call(args)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func systemName(system systemFn) string {
	if f := runtime.FuncForPC(reflect.ValueOf(system).Pointer()); f != nil {
		return f.Name()
	}
	return "system"
}
