package logging

import (
	"fmt"
	"os"
	"sync"
)

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// SetGlobalLogger replaces the logger behind GetGlobalLogger and the
// package-level helpers.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the process logger, creating an info-level stdout
// logger on first use.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = NewZapLogger(LogConfig{
			Level:  ParseLevel(os.Getenv("LOG_LEVEL")),
			Format: ParseFormat(os.Getenv("LOG_FORMAT")),
		})
	}
	return globalLogger
}

// ForComponent returns the global logger tagged with a component name
func ForComponent(name string) Logger {
	return GetGlobalLogger().WithFields(Field{"component", name})
}

// InitGlobalLogger configures the global logger from LOG_LEVEL, LOG_FORMAT
// and LOG_FILE. With LOG_FILE unset, output goes to stdout.
func InitGlobalLogger() error {
	config := LogConfig{
		Level:  ParseLevel(os.Getenv("LOG_LEVEL")),
		Format: ParseFormat(os.Getenv("LOG_FORMAT")),
	}

	logFileName := os.Getenv("LOG_FILE")
	if logFileName != "" {
		file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFileName, err)
		}
		config.Output = file
	}

	logger, err := NewZapLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetGlobalLogger(logger)

	logger.Info("Logger initialized",
		String("level", config.Level.String()),
		String("format", string(config.Format)),
		String("log_file", logFileName),
	)
	return nil
}

// MustSync flushes buffered entries; call it before exit.
func MustSync() {
	if zapLogger, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

func Debug(msg string, fields ...Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	GetGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

func Error(msg string, err error, fields ...Field) {
	GetGlobalLogger().Error(msg, err, fields...)
}
