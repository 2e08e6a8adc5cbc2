// Package storelog provides the zap-backed logging sink injected into a
// Store at construction. Unlike the teacher's pkg/logger, there is no
// package-level singleton: each Store owns its own Sink, so multiple Stores
// in one process never contend over global logger state or share an
// accidental misconfiguration.
package storelog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config mirrors the teacher's logger.Config fields relevant to a library
// sink: level, development mode, encoding, and output destinations.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// Sink wraps a *zap.Logger with the small set of methods the store calls.
type Sink struct {
	l *zap.Logger
}

// New builds a Sink from cfg.
func New(cfg Config) (*Sink, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &Sink{l: l}, nil
}

// Nop returns a Sink that discards everything, used as the Store default
// when no logger is supplied via WithLogger.
func Nop() *Sink {
	return &Sink{l: zap.NewNop()}
}

func (s *Sink) Debug(msg string, fields ...zap.Field) { s.l.Debug(msg, fields...) }
func (s *Sink) Info(msg string, fields ...zap.Field)  { s.l.Info(msg, fields...) }
func (s *Sink) Warn(msg string, fields ...zap.Field)  { s.l.Warn(msg, fields...) }
func (s *Sink) Error(msg string, fields ...zap.Field) { s.l.Error(msg, fields...) }

// With returns a new Sink with the given fields attached to every entry.
func (s *Sink) With(fields ...zap.Field) *Sink {
	return &Sink{l: s.l.With(fields...)}
}

// Sync flushes any buffered log entries.
func (s *Sink) Sync() error { return s.l.Sync() }
