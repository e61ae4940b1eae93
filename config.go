package spvrelay

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/spvrelay/build"
	"github.com/lightninglabs/spvrelay/headerstore"
	"github.com/lightninglabs/spvrelay/relaydb"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	defaultConfigFilename = "spvrelay.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "spvrelay.log"
	defaultDBFilename     = "relay.db"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"

	// minStateSize is the smallest state bound accepted. It fits a relay
	// with the minimum capacity.
	minStateSize = 1024
)

var (
	// DefaultRelayDir is the default directory where the relay keeps its
	// configuration, data and logs.
	DefaultRelayDir = btcutil.AppDataDir("spvrelay", false)

	// DefaultConfigFile is the default full path of the configuration
	// file.
	DefaultConfigFile = filepath.Join(DefaultRelayDir, defaultConfigFilename)

	defaultDataDir = filepath.Join(DefaultRelayDir, defaultDataDirname)
	defaultLogDir  = filepath.Join(DefaultRelayDir, defaultLogDirname)
)

// Config holds the relay configuration.
//
//nolint:lll
type Config struct {
	RelayDir   string `long:"relaydir" description:"The base directory that contains the relay's data, logs, configuration file, etc."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store the relay database within"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	Network string `long:"network" description:"The bitcoin network whose headers are relayed" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet" choice:"simnet"`

	MaxStateSize uint64 `long:"maxstatesize" description:"The largest encoded relay state, in bytes, that may be stored"`
	Capacity     uint32 `long:"capacity" description:"The number of header records retained by a newly initialized relay"`

	Logging *build.LogConfig `group:"logging" namespace:"logging"`

	DB *kvdb.BoltConfig `group:"bolt" namespace:"bolt"`

	// ActiveNetParams are the parameters of the selected network.
	ActiveNetParams *chaincfg.Params `no-flag:"true"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		RelayDir:     DefaultRelayDir,
		ConfigFile:   DefaultConfigFile,
		DataDir:      defaultDataDir,
		LogDir:       defaultLogDir,
		DebugLevel:   defaultLogLevel,
		Network:      defaultNetwork,
		MaxStateSize: relaydb.DefaultMaxStateSize,
		Capacity:     headerstore.DefaultCapacity,
		Logging:      build.DefaultLogConfig(),
		DB: &kvdb.BoltConfig{
			NoFreelistSync:    true,
			AutoCompactMinAge: kvdb.DefaultBoltAutoCompactMinAge,
			DBTimeout:         kvdb.DefaultDBTimeout,
		},
	}
}

// LoadConfig starts from the default config and loads the options of the
// configuration file within relayDir, or configFile if it is set. A missing
// file is not an error. The returned config still needs to be validated with
// ValidateConfig.
func LoadConfig(relayDir, configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if relayDir != "" {
		cfg.RelayDir = relayDir
	}

	// If the config file path has not been set by the user but their
	// relay directory was, we assume the config file lives within it.
	configFilePath := CleanAndExpandPath(configFile)
	if configFilePath == "" {
		configFilePath = filepath.Join(
			CleanAndExpandPath(cfg.RelayDir), defaultConfigFilename,
		)
	}
	cfg.ConfigFile = configFilePath

	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}
		if !os.IsNotExist(err) {
			return nil, err
		}

		log.Debugf("No config file at %v", configFilePath)
	}

	return &cfg, nil
}

// ValidateConfig checks the given configuration to be sane and normalizes
// all file system paths. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	// If the provided relay directory is not the default, we'll modify
	// the path to all of the files and directories that will live within
	// it.
	relayDir := CleanAndExpandPath(cfg.RelayDir)
	if relayDir != DefaultRelayDir {
		if cfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(
				relayDir, defaultDataDirname,
			)
		}
		if cfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(relayDir, defaultLogDirname)
		}
	}
	cfg.RelayDir = relayDir
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	params, err := networkParams(cfg.Network)
	if err != nil {
		return nil, err
	}
	cfg.ActiveNetParams = params

	if cfg.MaxStateSize < minStateSize {
		return nil, fmt.Errorf("maxstatesize must be at least %d, "+
			"got %d", minStateSize, cfg.MaxStateSize)
	}

	if cfg.Capacity < 2 || cfg.Capacity > headerstore.MaxCapacity {
		return nil, fmt.Errorf("capacity must be between 2 and %d, "+
			"got %d", headerstore.MaxCapacity, cfg.Capacity)
	}

	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// networkParams returns the chain parameters of a network name.
func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %q", network)
	}
}

// IsMainnet returns true if the relay follows the main network.
func (c *Config) IsMainnet() bool {
	return c.ActiveNetParams.Net == chaincfg.MainNetParams.Net
}

// networkDir returns the per network subdirectory of dir.
func (c *Config) networkDir(dir string) string {
	return filepath.Join(dir, c.ActiveNetParams.Name)
}

// DBPath returns the path of the relay database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.networkDir(c.DataDir), defaultDBFilename)
}

// LogFile returns the path of the log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.networkDir(c.LogDir), defaultLogFilename)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
