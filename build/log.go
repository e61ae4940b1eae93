package build

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btclog"
)

// LogType is the log destination chosen by the stdlog and nolog build tags.
type LogType byte

const (
	// LogTypeNone discards all output.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes to stdout only.
	LogTypeStdOut

	// LogTypeDefault writes to stdout and the rotator pipe.
	LogTypeDefault
)

// LogWriter is the io.Writer behind every backend. Its Write method is
// selected by build tags.
type LogWriter struct {
	// RotatorPipe receives a copy of every line when the default log type
	// is compiled in. It may be nil.
	RotatorPipe *io.PipeWriter
}

// NewSubLogger returns the logger for subsystem. genSubLogger is usually
// RotatingLogWriter.GenSubLogger; when it is nil the result depends on the
// build: stdout test builds get a private stdout logger at LogLevel, all
// others get a disabled logger.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil && (Deployment == Production ||
		LoggingType == LogTypeDefault) {

		return genSubLogger(subsystem)
	}

	if Deployment == Development && LoggingType == LogTypeStdOut {
		logger := btclog.NewBackend(&LogWriter{}).Logger(subsystem)

		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)

		return logger
	}

	return btclog.Disabled
}

// SubLoggers maps subsystem tags to their loggers.
type SubLoggers map[string]btclog.Logger

// LeveledSubLogger exposes a set of subsystem loggers whose levels can be
// changed at runtime.
type LeveledSubLogger interface {
	// SubLoggers returns every registered subsystem logger.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns the sorted subsystem tags.
	SupportedSubsystems() []string

	// SetLogLevel changes the level of one subsystem.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels changes the level of every subsystem.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a debug level string to logger. The string
// is either a single level for all subsystems, optionally followed by
// comma separated subsystem=level overrides, or only overrides.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	pairs := strings.Split(level, ",")

	if !strings.Contains(pairs[0], "=") {
		if !validLogLevel(pairs[0]) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", pairs[0])
		}

		logger.SetLogLevels(pairs[0])
		pairs = pairs[1:]
	}

	subLoggers := logger.SubLoggers()
	for _, pair := range pairs {
		subsysID, logLevel, ok := strings.Cut(pair, "=")
		if !ok || strings.Contains(logLevel, "=") {
			return fmt.Errorf("the specified debug level has an "+
				"invalid subsystem/level pair [%v], use "+
				"subsystem1=level1,subsystem2=level2", pair)
		}

		if _, exists := subLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid, supported subsystems are %v",
				subsysID, logger.SupportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		logger.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}
