//go:build nolog

package build

// LoggingType drops all relay logs.
const LoggingType = LogTypeNone

// Write discards b.
func (w *LogWriter) Write(b []byte) (int, error) {
	return len(b), nil
}
