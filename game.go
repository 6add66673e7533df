package dissolve

import (
	"github.com/gekko3d/dissolve/render/frame"
)

// NewGame assembles the maze game on backend. poll may be nil when input
// is driven directly; log may be nil for the default logger.
func NewGame(cfg Config, backend frame.Backend, poll Poller, log Logger, opts ...frame.Option) *App {
	return NewAppBuilder().
		UseModule(
			LoggingModule{Prefix: "dissolve", Debug: cfg.Debug, Use: log},
			TimeModule{FixedStep: cfg.FixedStep},
			InputModule{Poll: poll},
			LevelModule{Rows: cfg.Level},
			PlayerModule{Speed: cfg.MoveSpeed, Sensitivity: cfg.MouseSensitivity},
			HierarchyModule{},
			RenderModule{Backend: backend, Config: cfg, Options: opts},
			HUDModule{},
		).
		Build()
}
