// Package cli implements the ledgerctl operator commands.
//
// Every command opens the data directory through di.Wire, so it settles through the
// same coordinator, audit sink and metrics as the server. Running it against a data
// directory that a live server also uses is safe: SQLite immediate transactions
// serialize writers across processes.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/di"
	"github.com/aristath/ledger/internal/domain"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultActor is recorded as the actor when -actor is not given
const DefaultActor = "ledgerctl"

// Env is what every command runs against
type Env struct {
	Config *config.Config
	Out    io.Writer
	Err    io.Writer
	Log    zerolog.Logger
}

// Commands returns every ledgerctl subcommand bound to env
func Commands(env *Env) []subcommands.Command {
	return []subcommands.Command{
		&tradeCmd{env: env},
		&transactionCmd{env: env},
		&deleteTransactionCmd{env: env},
		&deleteTradeCmd{env: env},
		&recomputeCmd{env: env},
		&portfolioCmd{env: env},
		&aggregateCmd{env: env},
		&backupCmd{env: env},
	}
}

// run wires a container, calls fn and prints its result as JSON
func (e *Env) run(ctx context.Context, fn func(*di.Container) (interface{}, error)) subcommands.ExitStatus {
	container, err := di.Wire(ctx, e.Config, e.Log)
	if err != nil {
		fmt.Fprintf(e.Err, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	result, err := fn(container)
	if err != nil {
		fmt.Fprintf(e.Err, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	enc := json.NewEncoder(e.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(e.Err, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (e *Env) usageError(f *flag.FlagSet, msg string) subcommands.ExitStatus {
	fmt.Fprintf(e.Err, "Error: %s\n", msg)
	f.Usage()
	return subcommands.ExitUsageError
}

// decimalFlag parses a decimal command-line value
type decimalFlag struct {
	value decimal.Decimal
	set   bool
}

func (d *decimalFlag) String() string {
	if !d.set {
		return ""
	}
	return d.value.String()
}

func (d *decimalFlag) Set(s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q", s)
	}
	d.value = v
	d.set = true
	return nil
}

// requireUser is shared by every per-customer command
func requireUser(userID string) error {
	return domain.RequireNonEmpty("user_id", userID)
}
