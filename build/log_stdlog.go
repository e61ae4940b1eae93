//go:build stdlog

package build

import "os"

// LoggingType sends relay logs to stdout only. Unit tests build with this
// tag.
const LoggingType = LogTypeStdOut

// Write copies b to stdout and ignores the rotator pipe.
func (w *LogWriter) Write(b []byte) (int, error) {
	if _, err := os.Stdout.Write(b); err != nil {
		return 0, err
	}

	return len(b), nil
}
