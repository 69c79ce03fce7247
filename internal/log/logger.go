// Package log wraps slog with component-tagged loggers, shared field names
// and request-scoped loggers carried in the context.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a slog.Logger that always carries its component name.
type Logger struct {
	*slog.Logger
	// base holds every attribute except the component.
	base      *slog.Logger
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	Output    io.Writer
	Handler   slog.Handler
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Component: ComponentApp, Output: os.Stdout}
}

// New builds a text logger unless cfg.Handler is set.
func New(cfg Config) *Logger {
	handler := cfg.Handler
	if handler == nil {
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	}
	if cfg.Component == "" {
		cfg.Component = ComponentApp
	}
	base := slog.New(handler)
	return &Logger{
		Logger:    base.With(FieldComponent, cfg.Component),
		base:      base,
		component: cfg.Component,
	}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), base: l.base.With(args...), component: l.component}
}

// WithComponent derives a logger for another component sharing the handler.
// The new component replaces the old one.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.base.With(FieldComponent, component), base: l.base, component: component}
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs the logger as the slog default so packages logging
// through slog.*Context share its handler.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
