// Package debug provides env-gated diagnostic logging.
//
// Logging is off unless PML_DEBUG is set. Output goes to stderr, or to a
// size-rotated file when PML_DEBUG_FILE names a path.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once    sync.Once
	enabled bool
	mu      sync.Mutex
	out     io.Writer
)

func setup() {
	enabled = os.Getenv("PML_DEBUG") != ""
	if !enabled {
		return
	}
	if path := os.Getenv("PML_DEBUG_FILE"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		return
	}
	out = os.Stderr
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	once.Do(setup)
	return enabled
}

// Logf writes a timestamped line when debug logging is active.
func Logf(format string, args ...any) {
	once.Do(setup)
	if !enabled {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
