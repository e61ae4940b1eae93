package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lightninglabs/spvrelay"
	"github.com/lightninglabs/spvrelay/build"
	"github.com/lightninglabs/spvrelay/relaydb"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[relaycli] %v\n", err)
	os.Exit(1)
}

// loadConfig loads and validates the config selected by the global flags.
func loadConfig(ctx *cli.Context) (*spvrelay.Config, error) {
	cfg, err := spvrelay.LoadConfig(
		ctx.GlobalString("relaydir"), ctx.GlobalString("configfile"),
	)
	if err != nil {
		return nil, err
	}

	// Command line flags take precedence over the config file.
	if ctx.GlobalIsSet("network") {
		cfg.Network = ctx.GlobalString("network")
	}
	if ctx.GlobalIsSet("debuglevel") {
		cfg.DebugLevel = ctx.GlobalString("debuglevel")
	}

	return spvrelay.ValidateConfig(*cfg)
}

// getDB opens the relay database with logging set up. The returned cleanup
// closes both.
func getDB(ctx *cli.Context) (*spvrelay.Config, *relaydb.DB, func()) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		fatal(err)
	}

	logWriter := build.NewRotatingLogWriter()
	spvrelay.SetupLoggers(logWriter)
	if err := spvrelay.InitLogging(cfg, logWriter); err != nil {
		fatal(err)
	}

	db, err := spvrelay.OpenDB(cfg)
	if err != nil {
		_ = logWriter.Close()
		fatal(err)
	}

	cleanUp := func() {
		_ = db.Close()
		_ = logWriter.Close()
	}

	return cfg, db, cleanUp
}

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "    ")
	out.WriteString("\n")
	_, _ = out.WriteTo(os.Stdout)
}

func main() {
	app := cli.NewApp()
	app.Name = "relaycli"
	app.Version = build.Version() + " commit=" + build.Commit
	app.Usage = "maintain and query a bounded bitcoin header relay"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:      "relaydir",
			Value:     spvrelay.DefaultRelayDir,
			Usage:     "The path to the relay's base directory.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name:      "configfile",
			Usage:     "The path to the relay's config file.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name: "network, n",
			Usage: "The bitcoin network whose headers are " +
				"relayed, e.g. mainnet, testnet, etc.",
			Value: "mainnet",
		},
		cli.StringFlag{
			Name:  "debuglevel",
			Usage: "The logging level for all subsystems.",
			Value: "info",
		},
	}
	app.Commands = []cli.Command{
		initCommand,
		addHeadersCommand,
		addDifficultyChangeCommand,
		markHeaviestCommand,
		submitCommand,
		getInfoCommand,
		findHeaderCommand,
		verifyProofCommand,
		openRequestCommand,
		closeRequestCommand,
		listRequestsCommand,
		provideProofCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
