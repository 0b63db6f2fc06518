// Package logger wraps github.com/rs/zerolog with the category-based debug
// switches this library's components share: a caller can turn on verbose
// per-packet tracing for, say, TWCC feedback without drowning in bandwidth
// estimator output too.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level is the logging verbosity level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ToZerolog converts Level to zerolog.Level.
func (l Level) ToZerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a string to Level.
func ParseLevel(level string) (Level, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// OutputFormat determines the log output encoding.
type OutputFormat string

const (
	FormatJSON    OutputFormat = "json"
	FormatConsole OutputFormat = "console"
)

// ParseFormat converts a string to OutputFormat.
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "console", "text", "CONSOLE", "TEXT":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or console)", format)
	}
}

// Category is a debug switch scoped to one component's packet-level
// tracing, independent of the global level.
type Category string

const (
	CategoryTWCC      Category = "twcc"
	CategoryBWE       Category = "bwe"
	CategoryReorder   Category = "reorder"
	CategorySignaling Category = "signaling"
	CategoryTrack     Category = "track"
	CategoryAll       Category = "all"
)

var allCategories = []Category{CategoryTWCC, CategoryBWE, CategoryReorder, CategorySignaling, CategoryTrack}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Format     OutputFormat
	OutputFile string

	mu         sync.RWMutex
	categories map[Category]bool
}

// NewConfig creates a logger configuration with defaults: info level,
// console format, stderr output, no debug categories enabled.
func NewConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatConsole,
		categories: make(map[Category]bool),
	}
}

// EnableCategory turns on a debug category. CategoryAll enables every
// known category.
func (c *Config) EnableCategory(category Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if category == CategoryAll {
		for _, cat := range allCategories {
			c.categories[cat] = true
		}
		return
	}
	c.categories[category] = true
}

// IsCategoryEnabled reports whether a debug category is on.
func (c *Config) IsCategoryEnabled(category Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories[category]
}

// Logger wraps zerolog.Logger with the category gate.
type Logger struct {
	zerolog.Logger
	config *Config
	file   *os.File
}

// New builds a Logger from cfg, opening cfg.OutputFile if set.
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stderr
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	if cfg.Format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(writer).Level(cfg.Level.ToZerolog()).With().Timestamp().Logger()

	return &Logger{Logger: zl, config: cfg, file: file}, nil
}

// Close closes the underlying output file, if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Category returns an event logger for category, or a disabled event if
// the category is off, so call sites pay no formatting cost when disabled.
func (l *Logger) Category(category Category) *zerolog.Event {
	if !l.config.IsCategoryEnabled(category) {
		return l.Debug().Discard()
	}
	return l.Debug().Str("category", string(category))
}

// With returns a child Logger carrying the given context fields.
func (l *Logger) With(fields map[string]any) *Logger {
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{Logger: ctx.Logger(), config: l.config, file: l.file}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// SetDefault installs logger as the package default.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the package default logger, building one with NewConfig
// defaults the first time it's needed.
func Default() *Logger {
	once.Do(func() {
		if defaultLogger != nil {
			return
		}
		logger, err := New(NewConfig())
		if err != nil {
			fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
			logger = &Logger{Logger: fallback, config: NewConfig()}
		}
		defaultLogger = logger
	})
	return defaultLogger
}
