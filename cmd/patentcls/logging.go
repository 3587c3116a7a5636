package main

import (
	"log/slog"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is the interface shared by the models, inference and web packages.
type logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

var (
	_ logger = (*slog.Logger)(nil)
	_ logger = (*zapLogger)(nil)
	_ logger = (*switchLogger)(nil)
)

// zapLogger adapts a sugared zap logger to the key-value logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func newZapLogger(debug bool) (*zapLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Sugar()}, nil
}

func (z *zapLogger) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...any)  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }

func (z *zapLogger) Sync() error { return z.s.Sync() }

// switchLogger forwards to a target chosen once flags are parsed. Components
// are constructed before that, so they hold the switch instead.
type switchLogger struct {
	mu     sync.RWMutex
	target logger
}

func newSwitchLogger() *switchLogger {
	return &switchLogger{target: slog.Default()}
}

func (l *switchLogger) set(target logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.target = target
}

func (l *switchLogger) get() logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.target
}

func (l *switchLogger) Debug(msg string, kv ...any) { l.get().Debug(msg, kv...) }
func (l *switchLogger) Info(msg string, kv ...any)  { l.get().Info(msg, kv...) }
func (l *switchLogger) Warn(msg string, kv ...any)  { l.get().Warn(msg, kv...) }
func (l *switchLogger) Error(msg string, kv ...any) { l.get().Error(msg, kv...) }
