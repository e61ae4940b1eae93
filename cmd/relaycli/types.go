package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/headerstore"
	"github.com/lightninglabs/spvrelay/relaydb"
	"github.com/urfave/cli"
)

// parseIndex parses a header store index argument.
func parseIndex(s string) (uint32, error) {
	index, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", s, err)
	}

	return uint32(index), nil
}

// flagIndex returns the value of a required uint32 flag.
func flagIndex(ctx *cli.Context, name string) (uint32, error) {
	if !ctx.IsSet(name) {
		return 0, fmt.Errorf("%s must be set", name)
	}

	v := ctx.Uint64(name)
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d out of range", name, v)
	}

	return uint32(v), nil
}

// headerRecord is the JSON form of a stored header record.
type headerRecord struct {
	Index       uint32 `json:"index"`
	Hash        string `json:"hash"`
	Height      uint32 `json:"height"`
	ParentIndex uint32 `json:"parent_index"`
	EpochStart  uint32 `json:"epoch_start_index"`
}

func newHeaderRecord(index uint32, info headerstore.HeaderInfo) headerRecord {
	return headerRecord{
		Index:       index,
		Hash:        info.Digest.String(),
		Height:      info.Height,
		ParentIndex: info.ParentIndex,
		EpochStart:  info.EpochStartIndex,
	}
}

// jsonProof is the JSON form of a transaction inclusion proof.
type jsonProof struct {
	Tx                string   `json:"tx"`
	TxID              string   `json:"txid"`
	Index             uint32   `json:"index"`
	Header            string   `json:"header"`
	HeaderHeight      uint32   `json:"header_height"`
	HeaderIndex       uint32   `json:"header_index"`
	IntermediateNodes []string `json:"intermediate_nodes"`
}

// proof converts the JSON proof. The header claims are taken from the raw
// header itself.
func (j *jsonProof) proof() (*btcspv.Proof, error) {
	tx, err := hex.DecodeString(j.Tx)
	if err != nil {
		return nil, fmt.Errorf("invalid tx: %w", err)
	}

	txid, err := chainhash.NewHashFromStr(j.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid: %w", err)
	}

	rawHeader, err := hex.DecodeString(j.Header)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	header, err := btcspv.ParseHeader(rawHeader)
	if err != nil {
		return nil, err
	}

	nodes := make([]chainhash.Hash, 0, len(j.IntermediateNodes))
	for _, n := range j.IntermediateNodes {
		node, err := chainhash.NewHashFromStr(n)
		if err != nil {
			return nil, fmt.Errorf("invalid intermediate node: %w",
				err)
		}
		nodes = append(nodes, *node)
	}

	return &btcspv.Proof{
		Tx:    tx,
		TxID:  *txid,
		Index: j.Index,
		ConfirmingHeader: btcspv.ProofHeader{
			Raw:        rawHeader,
			Hash:       header.Digest(),
			Height:     j.HeaderHeight,
			PrevHash:   header.ParentDigest(),
			MerkleRoot: header.MerkleRoot(),
		},
		IntermediateNodes: nodes,
	}, nil
}

// requestRecord is the JSON form of a stored proof request.
type requestRecord struct {
	ID        uint64 `json:"id"`
	Spends    string `json:"spends_digest,omitempty"`
	Pays      string `json:"pays_digest,omitempty"`
	PaysValue uint64 `json:"pays_value"`
	NumConfs  uint8  `json:"num_confs"`
	Active    bool   `json:"active"`
}

func newRequestRecord(req *relaydb.ProofRequest) requestRecord {
	record := requestRecord{
		ID:        uint64(req.ID),
		PaysValue: req.PaysValue,
		NumConfs:  req.NumConfs,
		Active:    req.Active,
	}
	if req.HasSpends() {
		record.Spends = req.Spends.String()
	}
	if req.HasPays() {
		record.Pays = req.Pays.String()
	}

	return record
}
