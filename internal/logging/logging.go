// Package logging provides structured logging for fragsync.
//
// Every component takes a *Logger and tags its entries with the workspace,
// task and tracker issue they concern, so one sync can be followed across
// the cache, the orchestrator and the tracker client. Output goes to the
// console, to a rotated file, or both.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a log level.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Field names shared by every component.
const (
	FieldWorkspace   = "workspace_id"
	FieldTask        = "task_id"
	FieldTrackerKey  = "tracker_key"
	FieldStatus      = "status"
	FieldTransitions = "available_transitions"
	FieldComponent   = "component"
)

// Config describes where log output goes.
type Config struct {
	Level Level

	// JSON writes JSON to the console instead of the human-readable format.
	// File output is always JSON.
	JSON bool

	// FilePath enables a rotated log file. Console output is dropped unless
	// Console is also set.
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool

	Console bool
}

// DefaultConfig returns the console-only configuration used before the
// config file has been read.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
	}
}

// Logger is a zerolog logger carrying sync context fields.
type Logger struct {
	zl zerolog.Logger
}

var (
	global   *Logger
	globalMu sync.RWMutex
)

// Init builds a logger from cfg and installs it as the global logger.
// A nil cfg means DefaultConfig.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	w, err := output(cfg)
	if err != nil {
		return err
	}
	SetGlobal(New(w, cfg.Level))
	return nil
}

func output(cfg *Config) (io.Writer, error) {
	var writers []io.Writer

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	if cfg.Console || cfg.FilePath == "" {
		var console io.Writer = os.Stderr
		if !cfg.JSON {
			console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		}
		writers = append(writers, console)
	}

	if len(writers) == 1 {
		return writers[0], nil
	}
	return zerolog.MultiLevelWriter(writers...), nil
}

// New creates a logger writing to w. It does not touch the global logger.
func New(w io.Writer, level Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// SetGlobal replaces the global logger. Components capture the global
// logger when they are built, so call this before constructing them.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// Get returns the global logger, installing the default one on first use.
func Get() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		w, _ := output(DefaultConfig())
		global = New(w, InfoLevel)
	}
	return global
}

// WithComponent returns a global-derived logger tagged with component name.
func WithComponent(name string) *Logger {
	return Get().WithComponent(name)
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) WithWorkspace(workspaceID string) *Logger {
	return l.with(FieldWorkspace, workspaceID)
}

func (l *Logger) WithTask(taskID string) *Logger {
	return l.with(FieldTask, taskID)
}

func (l *Logger) WithTrackerKey(key string) *Logger {
	return l.with(FieldTrackerKey, key)
}

func (l *Logger) WithStatus(status string) *Logger {
	return l.with(FieldStatus, status)
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.with(FieldComponent, name)
}

// WithTransitions records the transitions the tracker offered, for
// diagnosing a status that could not be propagated.
func (l *Logger) WithTransitions(names []string) *Logger {
	return &Logger{zl: l.zl.With().Strs(FieldTransitions, names).Logger()}
}

// WithField adds an arbitrary field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(level string) (Level, error) {
	return zerolog.ParseLevel(level)
}

// LoggingConfig mirrors the logging section of the config file.
// Zero sizes keep the defaults.
type LoggingConfig struct {
	Level      string
	FilePath   string
	JSON       bool
	Console    bool
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// InitFromLogConfig installs the global logger described by lc.
func InitFromLogConfig(lc LoggingConfig) error {
	cfg := DefaultConfig()

	if lc.Level != "" {
		level, err := ParseLevel(lc.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		cfg.Level = level
	}

	cfg.FilePath = lc.FilePath
	cfg.JSON = lc.JSON
	cfg.Console = lc.Console
	cfg.Compress = lc.Compress
	if lc.MaxSize > 0 {
		cfg.MaxSize = lc.MaxSize
	}
	if lc.MaxBackups > 0 {
		cfg.MaxBackups = lc.MaxBackups
	}
	if lc.MaxAge > 0 {
		cfg.MaxAge = lc.MaxAge
	}

	return Init(cfg)
}
