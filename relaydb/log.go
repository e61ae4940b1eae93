package relaydb

import (
	"github.com/btcsuite/btclog"
	"github.com/lightninglabs/spvrelay/build"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "RLDB"

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests
// it.
var log btclog.Logger

func init() {
	UseLogger(build.NewSubLogger(Subsystem, nil))
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
