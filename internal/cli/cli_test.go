package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/config"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	*Env
	out *bytes.Buffer
	err *bytes.Buffer
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testEnv{
		Env: &Env{
			Config: &config.Config{
				DataDir: t.TempDir(),
				Ledger:  config.LedgerConfig{LockTimeout: time.Second, MaxRetries: 3},
			},
			Out: out,
			Err: errOut,
			Log: zerolog.Nop(),
		},
		out: out,
		err: errOut,
	}
}

func (e *testEnv) exec(t *testing.T, name string, args ...string) subcommands.ExitStatus {
	t.Helper()
	for _, c := range Commands(e.Env) {
		if c.Name() != name {
			continue
		}
		f := flag.NewFlagSet(name, flag.ContinueOnError)
		f.SetOutput(io.Discard)
		c.SetFlags(f)
		require.NoError(t, f.Parse(args))
		e.out.Reset()
		e.err.Reset()
		return c.Execute(context.Background(), f)
	}
	t.Fatalf("no command %q", name)
	return subcommands.ExitFailure
}

func (e *testEnv) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.out.Bytes(), v))
}

func TestCommands_Names(t *testing.T) {
	var names []string
	for _, c := range Commands(newEnv(t).Env) {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{
		"trade", "transaction", "delete-transaction", "delete-trade",
		"recompute", "portfolio", "aggregate", "backup",
	}, names)
}

func TestSettlementCommands(t *testing.T) {
	env := newEnv(t)

	require.Equal(t, subcommands.ExitSuccess, env.exec(t, "transaction", "-u", "u1", "-t", "deposit", "-m", "1000"))
	var txn struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
	}
	env.decode(t, &txn)
	require.NotEmpty(t, txn.Transaction.ID)

	require.Equal(t, subcommands.ExitSuccess,
		env.exec(t, "trade", "-u", "u1", "-t", "buy", "-a", "crypto", "-s", "btc", "-q", "0.01", "-p", "50000"))

	require.Equal(t, subcommands.ExitSuccess, env.exec(t, "portfolio", "-u", "u1"))
	var view struct {
		Portfolio struct {
			TotalValue    string `json:"total_value"`
			TotalInvested string `json:"total_invested"`
		} `json:"portfolio"`
		Holdings []struct {
			Symbol string `json:"symbol"`
		} `json:"holdings"`
	}
	env.decode(t, &view)
	assert.Equal(t, "1000", view.Portfolio.TotalValue)
	assert.Len(t, view.Holdings, 2)

	require.Equal(t, subcommands.ExitSuccess, env.exec(t, "aggregate", "-u", "u1"))
	var agg struct {
		TotalInvested string `json:"total_invested"`
		TotalTrades   int    `json:"total_trades"`
	}
	env.decode(t, &agg)
	assert.Equal(t, 1, agg.TotalTrades)

	require.Equal(t, subcommands.ExitSuccess, env.exec(t, "recompute", "-u", "u1"))
	require.Equal(t, subcommands.ExitSuccess, env.exec(t, "delete-transaction", txn.Transaction.ID))
	var deleted struct {
		Reversed bool `json:"ledger_reversed"`
	}
	env.decode(t, &deleted)
	assert.True(t, deleted.Reversed)
}

func TestCommandFailures(t *testing.T) {
	env := newEnv(t)

	assert.Equal(t, subcommands.ExitUsageError, env.exec(t, "trade", "-u", "u1", "-t", "buy", "-a", "stock", "-s", "AAPL"))
	assert.Equal(t, subcommands.ExitUsageError, env.exec(t, "trade", "-u", "u1", "-t", "hold", "-a", "stock", "-s", "AAPL", "-q", "1", "-p", "1"))
	assert.Equal(t, subcommands.ExitUsageError, env.exec(t, "recompute"))
	assert.Equal(t, subcommands.ExitUsageError, env.exec(t, "delete-transaction"))
	assert.Equal(t, subcommands.ExitUsageError, env.exec(t, "backup"))

	// Business rejections surface as failures with the reason on stderr
	assert.Equal(t, subcommands.ExitFailure,
		env.exec(t, "trade", "-u", "u1", "-t", "buy", "-a", "stock", "-s", "AAPL", "-q", "1", "-p", "100"))
	assert.Contains(t, env.err.String(), "Error:")

	assert.Equal(t, subcommands.ExitFailure, env.exec(t, "delete-trade", "missing"))
}

func TestDecimalFlag(t *testing.T) {
	var d decimalFlag
	assert.Equal(t, "", d.String())
	assert.Error(t, d.Set("abc"))
	require.NoError(t, d.Set("1.50"))
	assert.True(t, d.set)
	assert.Equal(t, "1.5", d.String())
}
