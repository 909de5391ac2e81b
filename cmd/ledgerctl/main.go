// Command ledgerctl settles and inspects ledger entries from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/aristath/ledger/internal/cli"
	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/pkg/logger"
	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}

	env := &cli.Env{
		Config: cfg,
		Out:    os.Stdout,
		Err:    os.Stderr,
		// Logs go to stderr so stdout stays machine-readable
		Log: logger.New(logger.Config{Level: "warn", Output: os.Stderr}),
	}
	for _, c := range cli.Commands(env) {
		commander.Register(c, "ledger")
	}

	os.Exit(int(commander.Execute(context.Background())))
}
