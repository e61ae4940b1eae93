package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvrelay"
	"github.com/lightninglabs/spvrelay/btcspv"
	"github.com/lightninglabs/spvrelay/relay"
	"github.com/lightninglabs/spvrelay/relaydb"
	"github.com/urfave/cli"
)

// parseHex decodes the hex value of a required flag.
func parseHex(ctx *cli.Context, name string) ([]byte, error) {
	if !ctx.IsSet(name) {
		return nil, fmt.Errorf("%s must be set", name)
	}

	b, err := hex.DecodeString(ctx.String(name))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}

	return b, nil
}

// processInstruction applies instr to the relay database and prints the
// resulting relay summary.
func processInstruction(ctx *cli.Context, instr relaydb.Instruction) error {
	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	if err := db.Process(instr); err != nil {
		return fmt.Errorf("%v failed (code %d): %w", instr.Type(),
			relaydb.CodeOf(err), err)
	}

	r, err := db.FetchRelay()
	if err != nil {
		return err
	}

	printJSON(newRelayInfo(r))

	return nil
}

var initCommand = cli.Command{
	Name:     "init",
	Category: "Relay",
	Usage:    "Initialize the relay at a genesis header.",
	Description: `
	Start a new relay from a raw genesis header at the given height. The
	epoch start is the hash of the first header of the genesis header's
	difficulty period. With --usegenesis, the genesis block of the selected
	network is used instead.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "genesis",
			Usage: "the raw genesis header, hex encoded",
		},
		cli.Uint64Flag{
			Name:  "height",
			Usage: "the height of the genesis header",
		},
		cli.StringFlag{
			Name:  "epochstart",
			Usage: "the hash of the first header of the genesis epoch",
		},
		cli.BoolFlag{
			Name:  "usegenesis",
			Usage: "start from the genesis block of the network",
		},
	},
	Action: initRelay,
}

func initRelay(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	if ctx.Bool("usegenesis") {
		instr, err := spvrelay.GenesisInitialize(
			cfg.ActiveNetParams, cfg.Capacity,
		)
		if err != nil {
			return err
		}

		return processInstruction(ctx, instr)
	}

	genesis, err := parseHex(ctx, "genesis")
	if err != nil {
		return err
	}

	epochStart, err := chainhash.NewHashFromStr(ctx.String("epochstart"))
	if err != nil {
		return fmt.Errorf("invalid epochstart: %w", err)
	}

	height, err := flagIndex(ctx, "height")
	if err != nil {
		return err
	}

	return processInstruction(ctx, &relaydb.Initialize{
		Genesis:    genesis,
		Height:     height,
		EpochStart: *epochStart,
		Mainnet:    cfg.IsMainnet(),
		Capacity:   cfg.Capacity,
	})
}

var addHeadersCommand = cli.Command{
	Name:      "addheaders",
	Category:  "Relay",
	Usage:     "Add headers that extend a stored header.",
	ArgsUsage: "anchor_index anchor headers",
	Description: `
	Add tightly packed raw headers on top of the raw anchor header stored
	at anchor_index. The headers must keep the anchor's difficulty.`,
	Action: addHeaders,
}

func addHeaders(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 3 {
		return cli.ShowCommandHelp(ctx, "addheaders")
	}

	anchorIndex, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	anchor, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid anchor: %w", err)
	}
	headers, err := hex.DecodeString(args[2])
	if err != nil {
		return fmt.Errorf("invalid headers: %w", err)
	}

	return processInstruction(ctx, &relaydb.AddHeaders{
		AnchorIndex: anchorIndex,
		Anchor:      anchor,
		Headers:     headers,
	})
}

var addDifficultyChangeCommand = cli.Command{
	Name:     "adddifficultychange",
	Category: "Relay",
	Usage:    "Add headers that start a new difficulty period.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "start",
			Usage: "the raw first header of the finished period",
		},
		cli.Uint64Flag{
			Name:  "endindex",
			Usage: "the index of the last header of the period",
		},
		cli.StringFlag{
			Name:  "end",
			Usage: "the raw last header of the finished period",
		},
		cli.StringFlag{
			Name:  "headers",
			Usage: "the tightly packed raw headers to add",
		},
	},
	Action: addDifficultyChange,
}

func addDifficultyChange(ctx *cli.Context) error {
	start, err := parseHex(ctx, "start")
	if err != nil {
		return err
	}
	end, err := parseHex(ctx, "end")
	if err != nil {
		return err
	}
	headers, err := parseHex(ctx, "headers")
	if err != nil {
		return err
	}
	endIndex, err := flagIndex(ctx, "endindex")
	if err != nil {
		return err
	}

	return processInstruction(ctx, &relaydb.AddDifficultyChange{
		OldPeriodStart:    start,
		OldPeriodEndIndex: endIndex,
		OldPeriodEnd:      end,
		Headers:           headers,
	})
}

var markHeaviestCommand = cli.Command{
	Name:     "markheaviest",
	Category: "Relay",
	Usage:    "Propose a new best header.",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "lcaindex",
			Usage: "the index of the latest common ancestor",
		},
		cli.StringFlag{
			Name:  "currentbest",
			Usage: "the raw current best header",
		},
		cli.Uint64Flag{
			Name:  "newbestindex",
			Usage: "the index of the proposed best header",
		},
		cli.StringFlag{
			Name:  "newbest",
			Usage: "the raw proposed best header",
		},
	},
	Action: markHeaviest,
}

func markHeaviest(ctx *cli.Context) error {
	currentBest, err := parseHex(ctx, "currentbest")
	if err != nil {
		return err
	}
	newBest, err := parseHex(ctx, "newbest")
	if err != nil {
		return err
	}
	lcaIndex, err := flagIndex(ctx, "lcaindex")
	if err != nil {
		return err
	}
	newBestIndex, err := flagIndex(ctx, "newbestindex")
	if err != nil {
		return err
	}

	return processInstruction(ctx, &relaydb.MarkNewHeaviest{
		LCAIndex:     lcaIndex,
		CurrentBest:  currentBest,
		NewBestIndex: newBestIndex,
		NewBest:      newBest,
	})
}

var submitCommand = cli.Command{
	Name:      "submit",
	Category:  "Relay",
	Usage:     "Process an encoded instruction.",
	ArgsUsage: "instruction",
	Description: `
	Decode a hex encoded instruction and apply it to the relay. The first
	byte selects the instruction, the rest is its tlv stream.`,
	Action: submit,
}

func submit(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "submit")
	}

	raw, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid instruction: %w", err)
	}

	instr, err := relaydb.DecodeInstruction(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("unable to decode instruction (code %d): %w",
			relaydb.CodeOf(err), err)
	}

	// Initialize carries the network rules of the relay, so they must
	// agree with the selected network.
	if initInstr, ok := instr.(*relaydb.Initialize); ok {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if initInstr.Mainnet != cfg.IsMainnet() {
			return fmt.Errorf("instruction mainnet=%v does not "+
				"match network %v", initInstr.Mainnet,
				cfg.Network)
		}
	}

	return processInstruction(ctx, instr)
}

var getInfoCommand = cli.Command{
	Name:     "getinfo",
	Category: "Query",
	Usage:    "Show the relay state.",
	Action:   getInfo,
}

func getInfo(ctx *cli.Context) error {
	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	r, err := db.FetchRelay()
	if err != nil {
		return err
	}

	printJSON(newRelayInfo(r))

	return nil
}

var findHeaderCommand = cli.Command{
	Name:      "findheader",
	Category:  "Query",
	Usage:     "Look up a retained header by hash.",
	ArgsUsage: "hash",
	Action:    findHeader,
}

func findHeader(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "findheader")
	}

	digest, err := chainhash.NewHashFromStr(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}

	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	r, err := db.FetchRelay()
	if err != nil {
		return err
	}

	index, err := r.FindHeader(*digest).UnwrapOrErr(
		fmt.Errorf("header %v not retained", digest),
	)
	if err != nil {
		return err
	}

	info, err := r.Header(index)
	if err != nil {
		return err
	}

	printJSON(newHeaderRecord(index, info))

	return nil
}

var verifyProofCommand = cli.Command{
	Name:      "verifyproof",
	Category:  "Query",
	Usage:     "Validate a transaction inclusion proof.",
	ArgsUsage: "proof_file",
	Description: `
	Read a JSON proof from proof_file, or stdin if it is "-", and check it
	against the best chain. The proof holds the hex encoded transaction
	(tx), its txid, its index in the block, the raw confirming header
	(header), the index of that header in the relay (header_index) and the
	merkle branch hashes (intermediate_nodes).`,
	Action: verifyProof,
}

func verifyProof(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "verifyproof")
	}

	jp, proof, err := readProof(ctx.Args().First())
	if err != nil {
		return err
	}

	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	confirmations, err := db.ValidateProof(jp.HeaderIndex, proof)
	if err != nil {
		return fmt.Errorf("invalid proof (code %d): %w",
			relaydb.CodeOf(err), err)
	}

	printJSON(struct {
		TxID          string `json:"txid"`
		Confirmations uint32 `json:"confirmations"`
	}{
		TxID:          proof.TxID.String(),
		Confirmations: confirmations,
	})

	return nil
}

// readProof reads a JSON proof from path, or stdin if path is "-".
func readProof(path string) (*jsonProof, *btcspv.Proof, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, err
	}

	var jp jsonProof
	if err := json.Unmarshal(raw, &jp); err != nil {
		return nil, nil, fmt.Errorf("invalid proof: %w", err)
	}

	proof, err := jp.proof()
	if err != nil {
		return nil, nil, err
	}

	return &jp, proof, nil
}

// relayInfo is the JSON summary of a relay.
type relayInfo struct {
	Genesis          string       `json:"genesis"`
	GenesisHeight    uint32       `json:"genesis_height"`
	EpochStart       string       `json:"pre_genesis_epoch_start"`
	Best             headerRecord `json:"best"`
	LastReorgLCA     string       `json:"last_reorg_lca"`
	NextIndex        uint32       `json:"next_index"`
	Capacity         int          `json:"capacity"`
	Mainnet          bool         `json:"mainnet"`
	MaxProofDepth    uint32       `json:"max_proof_depth"`
	MaxReorgWalkSize uint32       `json:"max_reorg_walk"`
}

func newRelayInfo(r *relay.Relay) *relayInfo {
	genesis := r.Genesis()

	return &relayInfo{
		Genesis:          genesis.Digest.String(),
		GenesisHeight:    genesis.Height,
		EpochStart:       r.PreGenesisEpochStart().String(),
		Best: newHeaderRecord(
			r.CurrentBestIndex(), r.Tip(),
		),
		LastReorgLCA:     r.LastReorgLCA().String(),
		NextIndex:        r.NextIndex(),
		Capacity:         r.Capacity(),
		Mainnet:          r.Mainnet(),
		MaxProofDepth:    relay.MaxProofDepth,
		MaxReorgWalkSize: relay.MaxReorgWalk,
	}
}
