package btree

import "fmt"

// LogLevel controls the verbosity of diagnostic messages emitted by this
// package.
type LogLevel int

const (
	// LogLevelOff disables all logging. The default.
	LogLevelOff LogLevel = iota
	// LogLevelError logs only conditions that cause an operation to fail.
	LogLevelError
	// LogLevelTrace logs internal bookkeeping decisions such as a
	// defragmentation pass or a freeblock-allocator fallback.
	LogLevelTrace
)

// LoggerFunc receives a formatted diagnostic message at the given level.
type LoggerFunc func(level LogLevel, msg string)

var (
	globalLogger   LoggerFunc
	globalLogLevel = LogLevelOff
)

// SetLogger installs a package-level logger and the minimum level at which
// it is invoked. Passing a nil LoggerFunc disables logging. There is no
// per-Node logger: a page is cheap enough that callers share one sink
// across every page they manage.
func SetLogger(fn LoggerFunc, level LogLevel) {
	globalLogger = fn
	globalLogLevel = level
}

func logf(level LogLevel, format string, args ...interface{}) {
	if globalLogger == nil || level > globalLogLevel || level == LogLevelOff {
		return
	}
	globalLogger(level, fmt.Sprintf(format, args...))
}
