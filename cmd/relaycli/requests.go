package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/spvrelay/relaydb"
	"github.com/urfave/cli"
)

var openRequestCommand = cli.Command{
	Name:     "openrequest",
	Category: "Requests",
	Usage:    "Open a request for a transaction proof.",
	Description: `
	Ask for a proof of a transaction that spends the given outpoint, pays
	the given output script, or both. A value of zero accepts any output
	value. The id of the new request is printed.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "outpoint",
			Usage: "the outpoint to be spent, as txid:index",
		},
		cli.StringFlag{
			Name:  "pkscript",
			Usage: "the output script to be paid, hex encoded",
		},
		cli.Uint64Flag{
			Name:  "value",
			Usage: "the smallest accepted output value in satoshis",
		},
		cli.Uint64Flag{
			Name:  "confs",
			Usage: "the number of confirmations a proof must have",
			Value: 1,
		},
	},
	Action: openRequest,
}

func openRequest(ctx *cli.Context) error {
	var (
		instr relaydb.OpenRequest
		err   error
	)

	if ctx.IsSet("outpoint") {
		op, err := wire.NewOutPointFromString(ctx.String("outpoint"))
		if err != nil {
			return fmt.Errorf("invalid outpoint: %w", err)
		}
		instr.Spends = relaydb.SerializeOutPoint(*op)
	}

	if ctx.IsSet("pkscript") {
		instr.Pays, err = parseHex(ctx, "pkscript")
		if err != nil {
			return err
		}
	}

	confs := ctx.Uint64("confs")
	if confs > math.MaxUint8 {
		return fmt.Errorf("confs %d out of range", confs)
	}
	instr.NumConfs = uint8(confs)
	instr.PaysValue = ctx.Uint64("value")

	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	id, err := db.OpenRequest(&instr)
	if err != nil {
		return fmt.Errorf("%v failed (code %d): %w", instr.Type(),
			relaydb.CodeOf(err), err)
	}

	req, err := db.FetchRequest(id)
	if err != nil {
		return err
	}

	printJSON(newRequestRecord(req))

	return nil
}

var closeRequestCommand = cli.Command{
	Name:      "closerequest",
	Category:  "Requests",
	Usage:     "Close a proof request.",
	ArgsUsage: "request_id",
	Action:    closeRequest,
}

func closeRequest(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "closerequest")
	}

	id, err := parseRequestID(ctx.Args().First())
	if err != nil {
		return err
	}

	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	instr := &relaydb.CloseRequest{ID: uint64(id)}
	if err := db.Process(instr); err != nil {
		return fmt.Errorf("%v failed (code %d): %w", instr.Type(),
			relaydb.CodeOf(err), err)
	}

	req, err := db.FetchRequest(id)
	if err != nil {
		return err
	}

	printJSON(newRequestRecord(req))

	return nil
}

var listRequestsCommand = cli.Command{
	Name:     "listrequests",
	Category: "Requests",
	Usage:    "List all proof requests.",
	Action:   listRequests,
}

func listRequests(ctx *cli.Context) error {
	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	reqs, err := db.FetchRequests()
	if err != nil {
		return err
	}

	records := make([]requestRecord, 0, len(reqs))
	for _, req := range reqs {
		records = append(records, newRequestRecord(req))
	}

	printJSON(struct {
		Requests []requestRecord `json:"requests"`
	}{
		Requests: records,
	})

	return nil
}

var provideProofCommand = cli.Command{
	Name:      "provideproof",
	Category:  "Requests",
	Usage:     "Check a transaction proof against a proof request.",
	ArgsUsage: "request_id proof_file",
	Description: `
	Read a JSON proof as accepted by verifyproof and check it against the
	best chain and the request. The transaction input at --input must
	spend the requested outpoint and the output at --output must pay the
	requested script.`,
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "input",
			Usage: "the index of the input spending the outpoint",
		},
		cli.Uint64Flag{
			Name:  "output",
			Usage: "the index of the output paying the script",
		},
	},
	Action: provideProof,
}

func provideProof(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 2 {
		return cli.ShowCommandHelp(ctx, "provideproof")
	}

	id, err := parseRequestID(args[0])
	if err != nil {
		return err
	}

	input, output := ctx.Uint64("input"), ctx.Uint64("output")
	if input > math.MaxUint32 || output > math.MaxUint32 {
		return fmt.Errorf("input %d or output %d out of range", input,
			output)
	}

	jp, proof, err := readProof(args[1])
	if err != nil {
		return err
	}

	_, db, cleanUp := getDB(ctx)
	defer cleanUp()

	confirmations, err := db.ProvideProof(
		id, jp.HeaderIndex, proof, uint32(input), uint32(output),
	)
	if err != nil {
		return fmt.Errorf("proof rejected (code %d): %w",
			relaydb.CodeOf(err), err)
	}

	printJSON(struct {
		RequestID     uint64 `json:"request_id"`
		TxID          string `json:"txid"`
		Confirmations uint32 `json:"confirmations"`
	}{
		RequestID:     uint64(id),
		TxID:          proof.TxID.String(),
		Confirmations: confirmations,
	})

	return nil
}

// parseRequestID parses a request id argument.
func parseRequestID(s string) (relaydb.RequestID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid request id %q", s)
	}

	return relaydb.RequestID(id), nil
}
