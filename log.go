package spvrelay

import (
	"github.com/btcsuite/btclog"
	"github.com/lightninglabs/spvrelay/build"
	"github.com/lightninglabs/spvrelay/relay"
	"github.com/lightninglabs/spvrelay/relaydb"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "SPVR"

// log is the logger of the root package. It is replaced by SetupLoggers.
var log = build.NewSubLogger(Subsystem, nil)

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.RotatingLogWriter) {
	AddSubLogger(root, Subsystem, func(logger btclog.Logger) {
		log = logger
	})
	AddSubLogger(root, relay.Subsystem, relay.UseLogger)
	AddSubLogger(root, relaydb.Subsystem, relaydb.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a sub
// system.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string,
	logger btclog.Logger, useLoggers ...func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// InitLogging starts log file rotation into the configured log file and
// applies the configured debug levels.
func InitLogging(cfg *Config, root *build.RotatingLogWriter) error {
	if err := root.InitLogRotator(cfg.Logging, cfg.LogFile()); err != nil {
		return err
	}

	return build.ParseAndSetDebugLevels(cfg.DebugLevel, root)
}
