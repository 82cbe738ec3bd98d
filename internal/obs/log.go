package obs

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newLogger()
)

// Fields carries structured context for a single log line.
type Fields map[string]any

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// EnableDebug globally enables debug logs.
func EnableDebug(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// Level is the level shared by the default logger; EnableDebug moves it.
func Level() zapcore.LevelEnabler { return level }

// SetLogger replaces the backing logger and returns a func restoring the previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	mu.Lock()
	prev := base
	base = l
	mu.Unlock()
	return func() {
		mu.Lock()
		base = prev
		mu.Unlock()
	}
}

// Sync flushes buffered log entries.
func Sync() { _ = logger().Sync() }

func logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func toZap(f Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func Info(msg string, f Fields)  { logger().Info(msg, toZap(f)...) }
func Error(msg string, f Fields) { logger().Error(msg, toZap(f)...) }
func Debug(msg string, f Fields) { logger().Debug(msg, toZap(f)...) }
