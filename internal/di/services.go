package di

import (
	"context"
	"fmt"

	"github.com/aristath/ledger/internal/clientdata"
	"github.com/aristath/ledger/internal/clients/prices"
	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/metrics"
	"github.com/aristath/ledger/internal/modules/aggregation"
	"github.com/aristath/ledger/internal/modules/audit"
	"github.com/aristath/ledger/internal/modules/cash_flows"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/modules/trading"
	"github.com/aristath/ledger/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) {
	ledgerConn := container.LedgerDB.Conn()

	container.HoldingRepo = holdings.NewRepository(log)
	container.PortfolioRepo = portfolio.NewRepository(log)
	container.TradeRepo = trading.NewTradeRepository(log)
	container.TransactionRepo = cash_flows.NewTransactionRepository(log)
	container.CashRepo = cash_flows.NewCashRepository(container.HoldingRepo, log)
	container.AuditRepo = audit.NewRepository(ledgerConn, log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())
}

// InitializeServices creates clients and services
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Metrics = metrics.New()
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Coordinator = ledger.NewCoordinator(container.LedgerDB.Conn(), ledger.Config{
		LockTimeout: cfg.Ledger.LockTimeout,
		MaxRetries:  cfg.Ledger.MaxRetries,
	}, container.Metrics, log)

	container.Valuation = portfolio.NewValuation(container.PortfolioRepo, container.HoldingRepo, log)

	// Audit sink, with Kafka fan-out when brokers are configured
	var publisher audit.Publisher
	if cfg.Kafka.Enabled() {
		container.KafkaPublisher = audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, container.Metrics, log)
		publisher = container.KafkaPublisher
	}
	container.AuditSink = audit.NewSink(container.AuditRepo, publisher, container.Metrics, log)

	// Price source
	var priceSource domain.PriceSource
	if cfg.Prices.APIURL != "" {
		container.PriceClient = prices.NewClient(cfg.Prices.APIURL, cfg.Prices.CacheTTL, container.ClientDataRepo, log)
		priceSource = container.PriceClient
	} else {
		log.Warn().Msg("PRICE_API_URL not set, price refresh keeps stored prices")
	}

	container.PortfolioService = portfolio.NewService(
		container.Coordinator,
		container.PortfolioRepo,
		container.HoldingRepo,
		container.Valuation,
		priceSource,
		container.EventManager,
		log,
	)

	container.TradeSettlement = trading.NewSettlementService(
		container.Coordinator,
		container.TradeRepo,
		container.PortfolioRepo,
		container.HoldingRepo,
		container.Valuation,
		container.AuditSink,
		container.EventManager,
		container.Metrics,
		trading.Config{AllowTradeDelete: cfg.Ledger.AllowTradeDelete},
		log,
	)

	container.CashSettlement = cash_flows.NewSettlementService(
		container.Coordinator,
		container.TransactionRepo,
		container.CashRepo,
		container.PortfolioRepo,
		container.Valuation,
		container.AuditSink,
		container.EventManager,
		container.Metrics,
		log,
	)

	container.AggregationService = aggregation.NewService(container.LedgerDB.Conn(), container.TradeRepo, log)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Store(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.LedgerDB, store, cfg.DataDir, 0, container.EventManager, log)
	}

	return nil
}
