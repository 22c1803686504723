// Package logging adds a process-wide log level on top of the standard log package.
package logging

import (
	"log"
	"strings"
	"sync/atomic"
)

// Level is a log severity. Higher values are more verbose.
type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[Level]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// Logf receives every line that passes the level gate. It defaults to log.Printf
// and may be replaced with SetOutput.
var Logf func(format string, v ...interface{}) = log.Printf

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// ParseLevel maps a LOG_LEVEL value to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelInfo
	}
}

// SetLevel sets the process-wide level.
func SetLevel(l Level) {
	current.Store(int32(l))
}

// GetLevel returns the process-wide level.
func GetLevel() Level {
	return Level(current.Load())
}

// Enabled reports whether messages at l are emitted.
func Enabled(l Level) bool {
	return l <= GetLevel()
}

// SetOutput replaces the output function. Passing nil mutes all output.
func SetOutput(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

func logAt(l Level, format string, v ...interface{}) {
	if !Enabled(l) {
		return
	}
	Logf("["+l.String()+"] "+format, v...)
}

func Errorf(format string, v ...interface{}) { logAt(LevelError, format, v...) }
func Warnf(format string, v ...interface{})  { logAt(LevelWarn, format, v...) }
func Infof(format string, v ...interface{})  { logAt(LevelInfo, format, v...) }
func Debugf(format string, v ...interface{}) { logAt(LevelDebug, format, v...) }
func Tracef(format string, v ...interface{}) { logAt(LevelTrace, format, v...) }
