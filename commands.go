package dissolve

import "context"

// Commands is handed to modules and systems to change the app.
type Commands struct {
	app *App
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

func (cmd *Commands) UseSystem(system systemScheduleBuilder) *Commands {
	cmd.app.UseSystem(system)
	return cmd
}

// Quit stops the app after the running system returns. A nil err is a
// clean exit.
func (cmd *Commands) Quit(err error) {
	cmd.app.stop(err)
}

func (cmd *Commands) Logger() Logger {
	return cmd.app.Logger()
}

func (cmd *Commands) Context() context.Context {
	return cmd.app.Context()
}

// Ecs is the entity store queries run against.
func (cmd *Commands) Ecs() *Ecs {
	return cmd.app.ecs
}
