// Package debug provides conditional debug logging for pcv.
//
// Debug logging is enabled by setting the PC_DEBUG environment variable or
// passing --debug:
//
//	PC_DEBUG=1 pcv --dataset levels.json
//
// When enabled, messages are written to stderr with timestamps. When
// disabled (default), every function here is a no-op.
package debug

import (
	"io"
	"log"
	"os"
	"sync"
	"time"
)

const prefix = "[PC_DEBUG] "

var (
	mu      sync.RWMutex
	enabled bool
	logger  = log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)
)

func init() {
	if os.Getenv("PC_DEBUG") != "" {
		enabled = true
	}
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = e
}

// SetOutput redirects debug output. The TUI uses this to keep log lines
// from corrupting the alternate screen.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, prefix, log.Ltime|log.Lmicroseconds)
}

func current() (*log.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return logger, enabled
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	l, ok := current()
	if !ok {
		return
	}
	l.Printf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	l, ok := current()
	if !ok {
		return
	}
	l.Printf("%s took %v", name, d)
}

// LogIf writes a debug message only if the condition is true.
func LogIf(cond bool, format string, args ...any) {
	if !cond {
		return
	}
	Log(format, args...)
}

// LogEnterExit logs function entry and exit with timing.
//
//	func myFunc() {
//	    defer debug.LogEnterExit("myFunc")()
//	}
func LogEnterExit(name string) func() {
	l, ok := current()
	if !ok {
		return func() {}
	}
	l.Printf("-> %s", name)
	start := time.Now()
	return func() {
		l.Printf("<- %s (%v)", name, time.Since(start))
	}
}
