// Package monitoring holds the pipeline's diagnostic logging. Every line goes
// through the package-level Logf so tests can capture or mute it, and carries
// the emitting source and a level: "<source> - <LEVEL> - <message>".
package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level is a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// ParseLevel converts a level name to a Level. Unknown names yield an error
// and LevelInfo.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLevel sets the minimum level that reaches Logf.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

// Enabled reports whether messages at l are currently emitted.
func Enabled(l Level) bool {
	return int32(l) >= minLevel.Load()
}

// Source logs on behalf of one named component.
type Source struct {
	name string
}

// For returns a logger tagged with the given source name.
func For(name string) Source {
	return Source{name: name}
}

// Name returns the source tag.
func (s Source) Name() string { return s.name }

func (s Source) Debugf(format string, v ...interface{}) { s.logf(LevelDebug, format, v...) }
func (s Source) Infof(format string, v ...interface{})  { s.logf(LevelInfo, format, v...) }
func (s Source) Warnf(format string, v ...interface{})  { s.logf(LevelWarn, format, v...) }
func (s Source) Errorf(format string, v ...interface{}) { s.logf(LevelError, format, v...) }

func (s Source) logf(level Level, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	Logf("%s - %s - %s", s.name, level, fmt.Sprintf(format, v...))
}
