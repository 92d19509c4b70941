// Package logging provides the package-level Info/Debug/Warn/Error call
// sites used throughout the interceptor, backed by zap. Every call writes to
// a log file under the cache directory rather than stdout/stderr, since both
// of those streams are reserved for the editor-facing LSP transport.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

func init() {
	logger = zap.NewNop().Sugar()
}

// Init points the package logger at a log file, creating its parent
// directory if needed. Safe to call once during startup; subsequent calls
// replace the active logger.
func Init(logPath string, level string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(f),
		parseLevel(level),
	)

	z := zap.New(core)

	mu.Lock()
	logger = z.Sugar()
	mu.Unlock()

	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync flushes any buffered log entries. Call once on clean shutdown.
func Sync() {
	_ = current().Sync()
}

func Debug(msg string, kv ...any) { current().Debugw(msg, kv...) }
func Info(msg string, kv ...any)  { current().Infow(msg, kv...) }
func Warn(msg string, kv ...any)  { current().Warnw(msg, kv...) }
func Error(msg string, kv ...any) { current().Errorw(msg, kv...) }
