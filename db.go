package spvrelay

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/spvrelay/relaydb"
	"github.com/lightningnetwork/lnd/kvdb"
)

// OpenDB opens the relay database of the configured network, creating it if
// needed.
func OpenDB(cfg *Config) (*relaydb.DB, error) {
	dbPath, dbFile := filepath.Split(cfg.DBPath())

	backend, err := kvdb.GetBoltBackend(&kvdb.BoltBackendConfig{
		DBPath:            dbPath,
		DBFileName:        dbFile,
		NoFreelistSync:    cfg.DB.NoFreelistSync,
		AutoCompact:       cfg.DB.AutoCompact,
		AutoCompactMinAge: cfg.DB.AutoCompactMinAge,
		DBTimeout:         cfg.DB.DBTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open relay database: %w", err)
	}

	db, err := relaydb.New(
		backend, relaydb.WithMaxStateSize(cfg.MaxStateSize),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	log.Debugf("Opened relay database at %v", cfg.DBPath())

	return db, nil
}

// GenesisInitialize returns an instruction that starts a relay at the
// genesis block of params. Only networks whose genesis digest meets the
// relay's minimum work can be started this way.
func GenesisInitialize(params *chaincfg.Params,
	capacity uint32) (*relaydb.Initialize, error) {

	var raw bytes.Buffer
	if err := params.GenesisBlock.Header.Serialize(&raw); err != nil {
		return nil, err
	}

	return &relaydb.Initialize{
		Genesis:    raw.Bytes(),
		Height:     0,
		EpochStart: *params.GenesisHash,
		Mainnet:    params.Net == chaincfg.MainNetParams.Net,
		Capacity:   capacity,
	}, nil
}
