package cli

import (
	"context"
	"flag"

	"github.com/aristath/ledger/internal/di"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/cash_flows"
	"github.com/aristath/ledger/internal/modules/trading"
	"github.com/google/subcommands"
)

type tradeCmd struct {
	env       *Env
	userID    string
	tradeType string
	assetType string
	symbol    string
	name      string
	actor     string
	quantity  decimalFlag
	price     decimalFlag
}

func (*tradeCmd) Name() string     { return "trade" }
func (*tradeCmd) Synopsis() string { return "settle a BUY or SELL trade" }
func (*tradeCmd) Usage() string {
	return `ledgerctl trade -u <user> -t BUY|SELL -a CRYPTO|STOCK|COMMODITY -s <symbol> -q <quantity> -p <price>

  Settles a trade against the customer's holdings and USD cash.
`
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "u", "", "Customer user ID.")
	f.StringVar(&c.tradeType, "t", "", "Trade type (BUY or SELL).")
	f.StringVar(&c.assetType, "a", "", "Asset type (CRYPTO, STOCK, COMMODITY).")
	f.StringVar(&c.symbol, "s", "", "Asset symbol.")
	f.StringVar(&c.name, "n", "", "Display name for a newly opened holding.")
	f.StringVar(&c.actor, "actor", DefaultActor, "Actor recorded in the audit trail.")
	f.Var(&c.quantity, "q", "Quantity.")
	f.Var(&c.price, "p", "Price per unit.")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.quantity.set || !c.price.set {
		return c.env.usageError(f, "-q and -p are required")
	}
	tradeType, err := domain.ParseTradeType(c.tradeType)
	if err != nil {
		return c.env.usageError(f, err.Error())
	}
	assetType, err := domain.ParseAssetType(c.assetType)
	if err != nil {
		return c.env.usageError(f, err.Error())
	}

	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		return container.TradeSettlement.ExecuteTrade(ctx, trading.TradeRequest{
			UserID:       c.userID,
			TradeType:    tradeType,
			AssetType:    assetType,
			Symbol:       c.symbol,
			Name:         c.name,
			Quantity:     c.quantity.value,
			PricePerUnit: c.price.value,
			ExecutedBy:   c.actor,
		})
	})
}

type transactionCmd struct {
	env      *Env
	userID   string
	txType   string
	currency string
	actor    string
	amount   decimalFlag
}

func (*transactionCmd) Name() string     { return "transaction" }
func (*transactionCmd) Synopsis() string { return "record a completed deposit or withdrawal" }
func (*transactionCmd) Usage() string {
	return `ledgerctl transaction -u <user> -t DEPOSIT|WITHDRAWAL -m <amount> [-c <currency>]

  Records a completed cash transaction and moves the customer's cash balance.
`
}

func (c *transactionCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "u", "", "Customer user ID.")
	f.StringVar(&c.txType, "t", "", "Transaction type (DEPOSIT or WITHDRAWAL).")
	f.StringVar(&c.currency, "c", domain.BaseCurrency, "Currency code.")
	f.StringVar(&c.actor, "actor", DefaultActor, "Actor recorded in the audit trail.")
	f.Var(&c.amount, "m", "Amount.")
}

func (c *transactionCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.amount.set {
		return c.env.usageError(f, "-m is required")
	}
	txType, err := domain.ParseTransactionType(c.txType)
	if err != nil {
		return c.env.usageError(f, err.Error())
	}

	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		return container.CashSettlement.RecordTransaction(ctx, cash_flows.TransactionRequest{
			UserID:          c.userID,
			TransactionType: txType,
			Amount:          c.amount.value,
			Currency:        c.currency,
			ProcessedBy:     c.actor,
		})
	})
}

type deleteTransactionCmd struct {
	env   *Env
	actor string
}

func (*deleteTransactionCmd) Name() string { return "delete-transaction" }
func (*deleteTransactionCmd) Synopsis() string {
	return "delete a transaction, reversing it if completed"
}
func (*deleteTransactionCmd) Usage() string {
	return `ledgerctl delete-transaction <transaction-id>

  Deletes the transaction record. A completed transaction is reversed first.
`
}

func (c *deleteTransactionCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.actor, "actor", DefaultActor, "Actor recorded in the audit trail.")
}

func (c *deleteTransactionCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.env.usageError(f, "exactly one transaction ID is required")
	}
	id := f.Arg(0)

	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		return container.CashSettlement.DeleteTransaction(ctx, id, c.actor)
	})
}

type deleteTradeCmd struct {
	env   *Env
	actor string
}

func (*deleteTradeCmd) Name() string     { return "delete-trade" }
func (*deleteTradeCmd) Synopsis() string { return "purge a trade record without reversing it" }
func (*deleteTradeCmd) Usage() string {
	return `ledgerctl delete-trade <trade-id>

  Removes the trade record only. Holdings and cash are left as they are.
  Refused unless LEDGER_ALLOW_TRADE_DELETE=true.
`
}

func (c *deleteTradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.actor, "actor", DefaultActor, "Actor recorded in the audit trail.")
}

func (c *deleteTradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.env.usageError(f, "exactly one trade ID is required")
	}
	id := f.Arg(0)

	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		if err := container.TradeSettlement.DeleteTrade(ctx, id, c.actor); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": id, "ledger_reversed": false}, nil
	})
}

type recomputeCmd struct {
	env    *Env
	userID string
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "recompute a portfolio's aggregates" }
func (*recomputeCmd) Usage() string {
	return `ledgerctl recompute -u <user>
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "u", "", "Customer user ID.")
}

func (c *recomputeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUser(c.userID); err != nil {
		return c.env.usageError(f, err.Error())
	}
	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		return container.PortfolioService.RecomputeForUser(ctx, c.userID)
	})
}

type portfolioCmd struct {
	env     *Env
	userID  string
	refresh bool
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show a portfolio and its holdings" }
func (*portfolioCmd) Usage() string {
	return `ledgerctl portfolio -u <user> [-refresh]
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "u", "", "Customer user ID.")
	f.BoolVar(&c.refresh, "refresh", false, "Refresh market prices before showing.")
}

func (c *portfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := requireUser(c.userID); err != nil {
		return c.env.usageError(f, err.Error())
	}
	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		if c.refresh {
			if _, err := container.PortfolioService.RefreshPrices(ctx, c.userID); err != nil {
				return nil, err
			}
		}
		return container.PortfolioService.GetPortfolio(ctx, c.userID)
	})
}

type aggregateCmd struct {
	env    *Env
	userID string
}

func (*aggregateCmd) Name() string     { return "aggregate" }
func (*aggregateCmd) Synopsis() string { return "replay trade history into positions" }
func (*aggregateCmd) Usage() string {
	return `ledgerctl aggregate [-u <user>]

  Without -u, reports every customer plus cross-customer statistics.
`
}

func (c *aggregateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "u", "", "Customer user ID.")
}

func (c *aggregateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		if c.userID != "" {
			return container.AggregationService.AggregatePortfolio(ctx, c.userID)
		}
		return container.AggregationService.AggregateAll(ctx)
	})
}

type backupCmd struct {
	env *Env
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "upload a ledger backup now" }
func (*backupCmd) Usage() string {
	return `ledgerctl backup

  Requires BACKUP_S3_BUCKET and credentials.
`
}

func (*backupCmd) SetFlags(*flag.FlagSet) {}

func (c *backupCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.env.Config.Backup.Enabled() {
		return c.env.usageError(f, "backups are not configured (BACKUP_S3_BUCKET)")
	}
	return c.env.run(ctx, func(container *di.Container) (interface{}, error) {
		if err := container.BackupService.Run(ctx); err != nil {
			return nil, err
		}
		return container.BackupService.ListBackups(ctx)
	})
}
