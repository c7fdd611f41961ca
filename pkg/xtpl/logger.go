package xtpl

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// offLevel sits above every zap level so nothing is written.
const offLevel = zapcore.FatalLevel + 1

var (
	globalLogger     *zap.Logger
	globalLevel      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	globalLoggerMu   sync.RWMutex
	globalLoggerOnce sync.Once
)

func initGlobalLogger() {
	globalLoggerOnce.Do(func() {
		config := GetGlobalConfig()
		if level, ok := parseLogLevel(config.LogLevel); ok {
			globalLevel.SetLevel(level)
		}
		globalLoggerMu.Lock()
		globalLogger = newLogger(os.Stderr, globalLevel)
		globalLoggerMu.Unlock()
	})
}

func parseLogLevel(levelStr string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "off":
		return offLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// NewLogger builds a console logger writing to w at the given level name.
// Unknown level names fall back to info.
func NewLogger(w io.Writer, level string) *zap.Logger {
	lvl, _ := parseLogLevel(level)
	return newLogger(w, zap.NewAtomicLevelAt(lvl))
}

func newLogger(w io.Writer, level zapcore.LevelEnabler) *zap.Logger {
	if w == nil {
		w = io.Discard
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core).Named("xtpl")
}

// SetLogger replaces the package logger. A nil logger silences logging.
func SetLogger(logger *zap.Logger) {
	initGlobalLogger()
	if logger == nil {
		logger = zap.NewNop()
	}
	globalLoggerMu.Lock()
	globalLogger = logger
	globalLoggerMu.Unlock()
}

// GetLogger returns the package logger
func GetLogger() *zap.Logger {
	initGlobalLogger()
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// UpdateLoggerFromConfig updates the level of the default logger from the global configuration
func UpdateLoggerFromConfig() {
	initGlobalLogger()
	config := GetGlobalConfig()
	if level, ok := parseLogLevel(config.LogLevel); ok {
		globalLevel.SetLevel(level)
	}
}

func debugEnabled(logger *zap.Logger) bool {
	return logger.Core().Enabled(zapcore.DebugLevel)
}
