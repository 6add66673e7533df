package dissolve

type AppBuilder struct {
	app     *App
	modules []Module
}

func NewAppBuilder() *AppBuilder {
	return &AppBuilder{app: newApp()}
}

func (b *AppBuilder) UseModule(modules ...Module) *AppBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// Build installs the modules in the order they were added.
func (b *AppBuilder) Build() *App {
	app := b.app
	commands := &Commands{app: app}
	for _, module := range b.modules {
		module.Install(app, commands)
	}
	return app
}
