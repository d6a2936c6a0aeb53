// Package logger wraps zap with the Init/Get/Sync call shape used
// across the source monorepo's service entrypoints.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config controls how the global logger is constructed.
type Config struct {
	Level       string // debug, info, warn, error
	ServiceName string
	Development bool
}

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// Init builds the global zap logger from cfg. Safe to call once at
// process startup; subsequent calls replace the global logger.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{Level: "info"}
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(levelOrDefault(cfg.Level))); err != nil {
		return err
	}
	zapCfg.Level = level

	if cfg.ServiceName != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": cfg.ServiceName}
	}

	l, err := zapCfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// Get returns the global logger, falling back to a no-op production
// logger if Init was never called (keeps tests and library callers
// safe without requiring explicit setup).
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes any buffered log entries. Call during graceful shutdown.
func Sync() error {
	l := Get()
	return l.Sync()
}

// SugaredLoggerAdapter adapts zap's SugaredLogger to the saga.Logger
// interface (Info/Warn/Error plus context-aware variants), so the
// orchestrator never imports zap directly.
type SugaredLoggerAdapter struct {
	sugar *zap.SugaredLogger
}

// NewSagaLogger returns an adapter over the global logger suitable
// for injection into internal/saga.Orchestrator.
func NewSagaLogger() *SugaredLoggerAdapter {
	return &SugaredLoggerAdapter{sugar: Get().Sugar()}
}

func (a *SugaredLoggerAdapter) Info(msg string, fields ...interface{})  { a.sugar.Infow(msg, fields...) }
func (a *SugaredLoggerAdapter) Warn(msg string, fields ...interface{})  { a.sugar.Warnw(msg, fields...) }
func (a *SugaredLoggerAdapter) Error(msg string, fields ...interface{}) { a.sugar.Errorw(msg, fields...) }

func (a *SugaredLoggerAdapter) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	a.sugar.Infow(msg, fields...)
}
func (a *SugaredLoggerAdapter) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	a.sugar.Warnw(msg, fields...)
}
func (a *SugaredLoggerAdapter) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	a.sugar.Errorw(msg, fields...)
}
