// Package logger wraps the standard library logger with a verbosity
// level and the traffic-category gates configured under the "log"
// section of the config file (printMessage, printGameUpdatePacket,
// printVariant, printExtra).
package logger

import (
	"log"
	"os"
)

// Level is a log verbosity threshold, ordered least to most verbose.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// ParseLevel maps a config string to a Level, defaulting to LevelInfo
// for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "error":
		return LevelError
	case "warn":
		return LevelWarn
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelInfo
	}
}

// Categories gates which traffic-logging categories are active. An
// enabled category logs through Trace, so it prints only when Level is
// LevelTrace.
type Categories struct {
	PrintMessage          bool
	PrintGameUpdatePacket bool
	PrintVariant          bool
	PrintExtra            bool
}

// Logger is a leveled logger with traffic-category gates.
type Logger struct {
	level Level
	cats  Categories

	err   *log.Logger
	warn  *log.Logger
	info  *log.Logger
	debug *log.Logger
	trace *log.Logger
}

// Default is the package-level Logger used by the convenience
// functions below, at info level with no traffic categories enabled.
var Default = New(LevelInfo, Categories{})

// New creates a Logger at the given level and category configuration.
func New(level Level, cats Categories) *Logger {
	return &Logger{
		level: level,
		cats:  cats,
		err:   log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
		warn:  log.New(os.Stderr, "[WARN] ", log.LstdFlags),
		info:  log.New(os.Stdout, "[INFO] ", log.LstdFlags),
		debug: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags),
		trace: log.New(os.Stdout, "[TRACE] ", log.LstdFlags),
	}
}

// Reconfigure replaces level and cats in place so code that captured
// Default before config load picks up the loaded settings.
func (l *Logger) Reconfigure(level Level, cats Categories) {
	l.level = level
	l.cats = cats
}

func (l *Logger) Error(format string, v ...any) {
	l.err.Printf(format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	if l.level >= LevelWarn {
		l.warn.Printf(format, v...)
	}
}

func (l *Logger) Info(format string, v ...any) {
	if l.level >= LevelInfo {
		l.info.Printf(format, v...)
	}
}

func (l *Logger) Debug(format string, v ...any) {
	if l.level >= LevelDebug {
		l.debug.Printf(format, v...)
	}
}

func (l *Logger) Trace(format string, v ...any) {
	if l.level >= LevelTrace {
		l.trace.Printf(format, v...)
	}
}

// Message logs a decoded text-packet summary, gated by
// cats.PrintMessage.
func (l *Logger) Message(format string, v ...any) {
	if l.cats.PrintMessage {
		l.Trace(format, v...)
	}
}

// GameUpdatePacket logs a tank-packet summary, gated by
// cats.PrintGameUpdatePacket.
func (l *Logger) GameUpdatePacket(format string, v ...any) {
	if l.cats.PrintGameUpdatePacket {
		l.Trace(format, v...)
	}
}

// Variant logs a decoded variant-list entry, gated by cats.PrintVariant.
func (l *Logger) Variant(format string, v ...any) {
	if l.cats.PrintVariant {
		l.Trace(format, v...)
	}
}

// Extra logs a raw extra-buffer dump, gated by cats.PrintExtra.
func (l *Logger) Extra(format string, v ...any) {
	if l.cats.PrintExtra {
		l.Trace(format, v...)
	}
}

func Info(format string, v ...any) {
	Default.Info(format, v...)
}

func Error(format string, v ...any) {
	Default.Error(format, v...)
}

func Debug(format string, v ...any) {
	Default.Debug(format, v...)
}
