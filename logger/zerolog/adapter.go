// Package zerolog adapts rs/zerolog to the core.Logger interface.
package zerolog

import (
	"fmt"
	"io"
	"os"

	"github.com/raykavin/matchbook/core"

	"github.com/rs/zerolog"
)

type Adapter struct {
	logger zerolog.Logger
}

// New creates a logger writing structured JSON to w at the given level.
func New(w io.Writer, level core.Level) *Adapter {
	logger := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &Adapter{logger: logger}
}

// NewConsole creates a human-readable logger for CLI use.
func NewConsole(level core.Level) *Adapter {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	logger := zerolog.New(writer).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &Adapter{logger: logger}
}

// NewAdapter wraps an existing zerolog logger
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// WithField implements core.Logger.
func (a *Adapter) WithField(key string, value any) core.Logger {
	return &Adapter{logger: a.logger.With().Interface(key, value).Logger()}
}

// WithFields implements core.Logger.
func (a *Adapter) WithFields(fields map[string]any) core.Logger {
	return &Adapter{logger: a.logger.With().Fields(fields).Logger()}
}

// WithError implements core.Logger.
func (a *Adapter) WithError(err error) core.Logger {
	return &Adapter{logger: a.logger.With().Err(err).Logger()}
}

// Debug implements core.Logger.
func (a *Adapter) Debug(args ...any) {
	a.logger.Debug().Msg(fmt.Sprint(args...))
}

// Info implements core.Logger.
func (a *Adapter) Info(args ...any) {
	a.logger.Info().Msg(fmt.Sprint(args...))
}

// Warn implements core.Logger.
func (a *Adapter) Warn(args ...any) {
	a.logger.Warn().Msg(fmt.Sprint(args...))
}

// Error implements core.Logger.
func (a *Adapter) Error(args ...any) {
	a.logger.Error().Msg(fmt.Sprint(args...))
}

// Fatal implements core.Logger.
func (a *Adapter) Fatal(args ...any) {
	a.logger.Fatal().Msg(fmt.Sprint(args...))
}

// Debugf implements core.Logger.
func (a *Adapter) Debugf(format string, args ...any) {
	a.logger.Debug().Msgf(format, args...)
}

// Infof implements core.Logger.
func (a *Adapter) Infof(format string, args ...any) {
	a.logger.Info().Msgf(format, args...)
}

// Warnf implements core.Logger.
func (a *Adapter) Warnf(format string, args ...any) {
	a.logger.Warn().Msgf(format, args...)
}

// Errorf implements core.Logger.
func (a *Adapter) Errorf(format string, args ...any) {
	a.logger.Error().Msgf(format, args...)
}

// Fatalf implements core.Logger.
func (a *Adapter) Fatalf(format string, args ...any) {
	a.logger.Fatal().Msgf(format, args...)
}

// SetLevel implements core.Logger.
func (a *Adapter) SetLevel(level core.Level) {
	a.logger = a.logger.Level(toZerologLevel(level))
}

// GetLevel implements core.Logger.
func (a *Adapter) GetLevel() core.Level {
	return toLevel(a.logger.GetLevel())
}

// toLevel converts zerolog.Level to core.Level.
func toLevel(level zerolog.Level) core.Level {
	switch level {
	case zerolog.Disabled:
		return core.Disabled
	case zerolog.DebugLevel:
		return core.DebugLevel
	case zerolog.InfoLevel:
		return core.InfoLevel
	case zerolog.WarnLevel:
		return core.WarnLevel
	case zerolog.ErrorLevel:
		return core.ErrorLevel
	case zerolog.FatalLevel:
		return core.FatalLevel
	default:
		return core.InfoLevel
	}
}

// toZerologLevel converts core.Level to zerolog.Level.
func toZerologLevel(level core.Level) zerolog.Level {
	switch level {
	case core.Disabled:
		return zerolog.Disabled
	case core.DebugLevel:
		return zerolog.DebugLevel
	case core.InfoLevel:
		return zerolog.InfoLevel
	case core.WarnLevel:
		return zerolog.WarnLevel
	case core.ErrorLevel:
		return zerolog.ErrorLevel
	case core.FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
