package logging

import "go.uber.org/zap"

// New creates a sugared logger named after the component that owns it. It hangs off
// the global logger installed by config.New.
func New(component string) *zap.SugaredLogger {
	return zap.L().Named(component).Sugar()
}

// Or returns l when set, otherwise a logger for component
func Or(l *zap.SugaredLogger, component string) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return New(component)
}
