// Package logging constructs the structured logger shared by the CLI and
// the embeddable interpreter.
package logging

import "go.uber.org/zap"

// New builds a zap logger suited to interactive CLI use: human-readable
// console encoding with caller info, at info level, or debug level when
// verbose is requested.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
