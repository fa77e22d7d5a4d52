package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level represents the logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelQuiet // No output
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// String returns the upper-case level name
func (lv Level) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "QUIET"
}

func (lv Level) zerolog() zerolog.Level {
	switch lv {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// ParseLevel converts a level name (debug, info, warn, error, quiet) to a Level
func ParseLevel(name string) (Level, error) {
	switch name {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO", "":
		return LevelInfo, nil
	case "warn", "warning", "WARN":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	case "quiet", "QUIET":
		return LevelQuiet, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger handles application logging. Terminal output is plain text,
// the optional log file receives JSON lines tagged with the run id.
type Logger struct {
	level      Level
	output     io.Writer
	fileOutput *os.File
	runID      string
	mu         sync.Mutex

	// zl fans out to the terminal and the log file. It is rebuilt whenever
	// the level or a destination changes.
	zl    zerolog.Logger
	built bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{
			level:  LevelInfo,
			output: os.Stderr,
			runID:  uuid.NewString(),
		}
	})
	return defaultLogger
}

// New creates a logger writing to w at the given level
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		level:  level,
		output: w,
		runID:  uuid.NewString(),
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.built = false
}

// SetOutput redirects terminal output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.built = false
}

// SetVerbose enables debug output
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.SetLevel(LevelDebug)
	}
}

// SetQuiet disables all output except errors
func (l *Logger) SetQuiet(quiet bool) {
	if quiet {
		l.SetLevel(LevelError)
	}
}

// RunID returns the identifier attached to every file log line of this run
func (l *Logger) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

// EnableFileLogging enables logging to a file. An empty path selects
// upkeep.log inside LogDir.
func (l *Logger) EnableFileLogging(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if path == "" {
		logDir, err := LogDir()
		if err != nil {
			return err
		}
		path = filepath.Join(logDir, "upkeep.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.fileOutput = f
	l.built = false
	return nil
}

// Close closes the log file if open
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileOutput != nil {
		l.fileOutput.Close()
		l.fileOutput = nil
		l.built = false
	}
}

// LogDir returns the log directory path
func LogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	// Use XDG_STATE_HOME for logs (standard for runtime data)
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}

	return filepath.Join(xdgState, "upkeep", "logs"), nil
}

// formatLevel renders the console prefix, e.g. "WARN:"
func formatLevel(i interface{}) string {
	if name, ok := i.(string); ok {
		return strings.ToUpper(name) + ":"
	}
	return ""
}

// logger returns the zerolog logger, rebuilding it after a configuration
// change. It must be called with l.mu held.
func (l *Logger) logger() *zerolog.Logger {
	if l.built {
		return &l.zl
	}
	l.built = true

	var ws []io.Writer
	floor := zerolog.Disabled
	if l.output != nil && l.level != LevelQuiet {
		console := zerolog.ConsoleWriter{
			Out:           l.output,
			NoColor:       true,
			PartsOrder:    []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
			FormatLevel:   formatLevel,
			FieldsExclude: []string{"run_id"},
		}
		ws = append(ws, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: console},
			Level:  l.level.zerolog(),
		})
		floor = l.level.zerolog()
	}
	// The file log keeps everything, including debug lines hidden from the terminal
	if l.fileOutput != nil {
		ws = append(ws, l.fileOutput)
		floor = zerolog.DebugLevel
	}

	if len(ws) == 0 {
		l.zl = zerolog.Nop()
		return &l.zl
	}
	l.zl = zerolog.New(zerolog.MultiLevelWriter(ws...)).
		Level(floor).
		With().Timestamp().Str("run_id", l.runID).Logger()
	return &l.zl
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger().WithLevel(level.zerolog()).Msgf(format, args...)
}

// Structured returns a zerolog logger for field-style events. It honors the
// current level and writes to the same destinations as the printf helpers.
func (l *Logger) Structured() *zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	zl := *l.logger()
	return &zl
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Package-level convenience functions
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }
func Info(format string, args ...interface{})  { Default().Info(format, args...) }
func Warn(format string, args ...interface{})  { Default().Warn(format, args...) }
func Error(format string, args ...interface{}) { Default().Error(format, args...) }
func SetVerbose(v bool)                        { Default().SetVerbose(v) }
func SetQuiet(q bool)                          { Default().SetQuiet(q) }
func L() *zerolog.Logger                       { return Default().Structured() }
