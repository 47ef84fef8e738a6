package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config controls where and how log lines are written.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string

	// Format is "text" (console encoder) or "json"
	Format string

	// Output is stdout, stderr, or a file path
	Output string
}

var (
	mu          sync.RWMutex
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar       = newDefault()
)

func newDefault() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = atomicLevel
	cfg.OutputPaths = []string{"stdout"}
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Init replaces the process logger with one built from cfg.
func Init(cfg Config) error {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	zcfg.Level = atomicLevel
	zcfg.DisableStacktrace = true
	if cfg.Output != "" {
		zcfg.OutputPaths = []string{cfg.Output}
	}

	l, err := zcfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	SetLevel(cfg.Level)

	mu.Lock()
	old := sugar
	sugar = l.Sugar()
	mu.Unlock()

	_ = old.Sync()
	return nil
}

func SetLevel(level string) {
	atomicLevel.SetLevel(ParseLevel(level).zapLevel())
}

// Enabled reports whether messages at level would be written.
func Enabled(level Level) bool {
	return atomicLevel.Enabled(level.zapLevel())
}

// Sync flushes buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Sync()
}

// With returns a logger carrying the given key/value pairs on every line.
// Used for request-scoped logging (request id, client address).
func With(keysAndValues ...any) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().With(keysAndValues...)
}

func log(level Level, format string, v ...any) {
	if !Enabled(level) {
		return
	}

	mu.RLock()
	l := sugar
	mu.RUnlock()

	switch level {
	case LevelDebug:
		l.Debugf(format, v...)
	case LevelInfo:
		l.Infof(format, v...)
	case LevelWarn:
		l.Warnf(format, v...)
	default:
		l.Errorf(format, v...)
	}
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
