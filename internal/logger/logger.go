// Package logger provides leveled logging with pluggable handlers: a
// thin wrapper around the standard library logger rather than a bare
// log.Printf scattered through the core.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelOK
	LevelWarn
	LevelFatal
)

// Handler receives every logged message at exactly the level it was
// registered for.
type Handler func(l LogLevel, msg string)

type Logger struct {
	mut      sync.Mutex
	std      *log.Logger
	level    LogLevel
	handlers map[LogLevel][]Handler
}

// New returns a Logger that writes to stderr by default, at LevelInfo.
func New() *Logger {
	return &Logger{
		std:      log.New(os.Stderr, "", log.LstdFlags),
		level:    LevelInfo,
		handlers: make(map[LogLevel][]Handler),
	}
}

// SetLevel changes the minimum level printed to the underlying writer.
// Handlers still receive every message regardless of this setting.
func (l *Logger) SetLevel(level LogLevel) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.level = level
}

func (l *Logger) SetFlags(flag int) {
	l.std.SetFlags(flag)
}

func (l *Logger) SetPrefix(prefix string) {
	l.std.SetPrefix(prefix)
}

func (l *Logger) SetOutput(w interface{ Write([]byte) (int, error) }) {
	l.std.SetOutput(w)
}

// AddHandler registers fn to be called for every message logged at
// exactly the given level.
func (l *Logger) AddHandler(level LogLevel, fn Handler) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.handlers[level] = append(l.handlers[level], fn)
}

func (l *Logger) log(level LogLevel, prefix, msg string) {
	full := prefix + msg

	l.mut.Lock()
	minLevel := l.level
	hs := l.handlers[level]
	l.mut.Unlock()

	if level >= minLevel {
		l.std.Output(3, full)
	}
	for _, h := range hs {
		h(level, full)
	}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.log(LevelDebug, "DEBUG: ", fmt.Sprintf(format, v...))
}

func (l *Logger) Debugln(v ...interface{}) {
	l.log(LevelDebug, "DEBUG: ", fmt.Sprintln(v...))
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.log(LevelInfo, "INFO: ", fmt.Sprintf(format, v...))
}

func (l *Logger) Infoln(v ...interface{}) {
	l.log(LevelInfo, "INFO: ", fmt.Sprintln(v...))
}

func (l *Logger) Okf(format string, v ...interface{}) {
	l.log(LevelOK, "OK: ", fmt.Sprintf(format, v...))
}

func (l *Logger) Okln(v ...interface{}) {
	l.log(LevelOK, "OK: ", fmt.Sprintln(v...))
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.log(LevelWarn, "WARNING: ", fmt.Sprintf(format, v...))
}

func (l *Logger) Warnln(v ...interface{}) {
	l.log(LevelWarn, "WARNING: ", fmt.Sprintln(v...))
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.log(LevelFatal, "FATAL: ", fmt.Sprintf(format, v...))
	os.Exit(3)
}

func (l *Logger) Fatalln(v ...interface{}) {
	l.log(LevelFatal, "FATAL: ", fmt.Sprintln(v...))
	os.Exit(3)
}

// DefaultLogger is the process-wide logger used by every lanxfer
// package; cmd/lanxfer may raise its verbosity or attach handlers
// (e.g. to drive a terminal status line) before starting services.
var DefaultLogger = New()
