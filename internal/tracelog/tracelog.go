// Package tracelog is the translator's leveled logger, gated by the same
// 0..5 log_level scale spec §6 names, in the teacher's DebugLevel idiom
// (vm.DebugLevel) rather than a structured-logging dependency the teacher
// never imports.
package tracelog

import (
	"fmt"
	"os"
	"sync"
)

// Level mirrors spec §6's log_level integer: 0 silent, 5 per-instruction.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	mu      sync.Mutex
	current Level = LevelWarn
	out             = os.Stderr
)

// SetLevel adjusts the process-wide verbosity, clamped to [0,5].
func SetLevel(n int) {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case n <= int(LevelSilent):
		current = LevelSilent
	case n >= int(LevelTrace):
		current = LevelTrace
	default:
		current = Level(n)
	}
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l <= current
}

func emit(l Level, tag string, format string, args ...any) {
	if !enabled(l) {
		return
	}
	fmt.Fprintf(out, "[%s] "+format+"\n", append([]any{tag}, args...)...)
}

func Errorf(format string, args ...any) { emit(LevelError, "error", format, args...) }
func Warnf(format string, args ...any)  { emit(LevelWarn, "warn", format, args...) }
func Infof(format string, args ...any)  { emit(LevelInfo, "info", format, args...) }
func Debugf(format string, args ...any) { emit(LevelDebug, "debug", format, args...) }
func Tracef(format string, args ...any) { emit(LevelTrace, "trace", format, args...) }
