//go:build !stdlog && !nolog

package build

import "os"

// LoggingType sends relay logs to stdout and, once InitLogRotator ran, to
// the rotating log file.
const LoggingType = LogTypeDefault

// Write copies b to stdout and to the rotator pipe when one is attached.
// Failures of either destination are not reported to the logger.
func (w *LogWriter) Write(b []byte) (int, error) {
	_, _ = os.Stdout.Write(b)
	if w.RotatorPipe != nil {
		_, _ = w.RotatorPipe.Write(b)
	}

	return len(b), nil
}
