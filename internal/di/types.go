// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/ledger/internal/clientdata"
	"github.com/aristath/ledger/internal/clients/prices"
	"github.com/aristath/ledger/internal/database"
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
)

// Container holds all dependencies for the application.
// It is created by Wire and is the single source of truth for service instances.
type Container struct {
	// Databases
	LedgerDB *database.DB // portfolios, holdings, trades, transactions, activity_log
	CacheDB  *database.DB // price quote cache

	// Infrastructure
	Metrics      *metrics.Metrics
	EventBus     *events.Bus
	EventManager *events.Manager
	Coordinator  *ledger.Coordinator

	// Repositories
	HoldingRepo     *holdings.Repository
	PortfolioRepo   *portfolio.Repository
	TradeRepo       *trading.TradeRepository
	TransactionRepo *cash_flows.TransactionRepository
	CashRepo        *cash_flows.CashRepository
	AuditRepo       *audit.Repository
	ClientDataRepo  *clientdata.Repository

	// Clients
	PriceClient    *prices.Client
	KafkaPublisher *audit.KafkaPublisher // nil when Kafka is not configured

	// Services
	Valuation          *portfolio.Valuation
	AuditSink          *audit.Sink
	PortfolioService   *portfolio.Service
	TradeSettlement    *trading.SettlementService
	CashSettlement     *cash_flows.SettlementService
	AggregationService *aggregation.Service
	BackupService      *reliability.BackupService // nil when backups are not configured
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.LedgerDB != nil {
		dbs["ledger"] = c.LedgerDB
	}
	if c.CacheDB != nil {
		dbs["cache"] = c.CacheDB
	}
	return dbs
}

// Close flushes the audit publisher and closes every database
func (c *Container) Close() error {
	var firstErr error
	if c.KafkaPublisher != nil {
		if err := c.KafkaPublisher.Close(); err != nil {
			firstErr = err
		}
	}
	for _, db := range []*database.DB{c.CacheDB, c.LedgerDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
