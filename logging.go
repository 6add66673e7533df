package dissolve

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/gekko3d/dissolve/render/core"
)

// Logger is shared with the render packages so one instance can be handed
// to the scheduler, the backends and the world.
type Logger = core.Logger

type DefaultLogger struct {
	mu     sync.Mutex
	debug  bool
	prefix string
	out    *log.Logger
	err    *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewLoggerTo(os.Stdout, os.Stderr, prefix, debug)
}

// NewLoggerTo writes debug and info lines to out, warnings and errors to
// errOut.
func NewLoggerTo(out, errOut io.Writer, prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		debug:  debug,
		prefix: prefix,
		out:    log.New(out, "", flags),
		err:    log.New(errOut, "", flags),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf("ERROR", format, args...))
}

// LoggingModule installs a default logger as a resource. A logger given in
// Use is installed instead.
type LoggingModule struct {
	Prefix string
	Debug  bool
	Use    Logger
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	if m.Use != nil {
		m.Use.SetDebug(m.Debug)
		app.logger = m.Use
		return
	}
	logger := NewDefaultLogger(m.Prefix, m.Debug)
	app.logger = logger
	cmd.AddResources(logger)
}

// Logger returns the installed logger, or a no-op logger. Never nil.
func (app *App) Logger() Logger {
	if app == nil || app.logger == nil {
		return core.NopLogger()
	}
	return app.logger
}
