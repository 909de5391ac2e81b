package aggregation

import (
	"context"
	"database/sql"
	"sort"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Statistics summarises invested totals across customers
type Statistics struct {
	Customers      int             `json:"customers"`
	TotalTrades    int             `json:"total_trades"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	MeanInvested   float64         `json:"mean_invested"`
	StdDevInvested float64         `json:"stddev_invested"`
	MedianInvested float64         `json:"median_invested"`
}

// Report is the cross-customer reporting view
type Report struct {
	Aggregates []Aggregate `json:"aggregates"`
	Statistics Statistics  `json:"statistics"`
}

// Service serves read-only aggregation queries
type Service struct {
	db     *sql.DB
	trades *trading.TradeRepository
	log    zerolog.Logger
}

// NewService creates a new aggregation service
func NewService(db *sql.DB, trades *trading.TradeRepository, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		trades: trades,
		log:    log.With().Str("service", "aggregation").Logger(),
	}
}

// AggregatePortfolio replays one customer's trade history
func (s *Service) AggregatePortfolio(ctx context.Context, userID string) (*Aggregate, error) {
	if err := domain.RequireNonEmpty("user_id", userID); err != nil {
		return nil, err
	}

	trades, err := s.trades.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	agg := Replay(trades)
	agg.UserID = userID
	return &agg, nil
}

// AggregateAll replays every customer's trades and summarises them
func (s *Service) AggregateAll(ctx context.Context) (*Report, error) {
	trades, err := s.trades.ListAll(ctx, s.db)
	if err != nil {
		return nil, err
	}

	// ListAll is grouped by user, each group in execution order
	report := &Report{Aggregates: []Aggregate{}}
	start := 0
	for i := 1; i <= len(trades); i++ {
		if i < len(trades) && trades[i].UserID == trades[start].UserID {
			continue
		}
		agg := Replay(trades[start:i])
		agg.UserID = trades[start].UserID
		report.Aggregates = append(report.Aggregates, agg)
		start = i
	}

	report.Statistics = Summarize(report.Aggregates)

	s.log.Debug().
		Int("customers", report.Statistics.Customers).
		Int("trades", report.Statistics.TotalTrades).
		Msg("Aggregated all portfolios")

	return report, nil
}

// Summarize computes cross-customer statistics over invested totals
func Summarize(aggs []Aggregate) Statistics {
	stats := Statistics{
		Customers:     len(aggs),
		TotalInvested: decimal.Zero,
	}
	if len(aggs) == 0 {
		return stats
	}

	invested := make([]float64, len(aggs))
	for i, agg := range aggs {
		stats.TotalTrades += agg.TotalTrades
		stats.TotalInvested = stats.TotalInvested.Add(agg.TotalInvested)
		invested[i] = agg.TotalInvested.InexactFloat64()
	}

	stats.MeanInvested = stat.Mean(invested, nil)
	if len(invested) > 1 {
		stats.StdDevInvested = stat.StdDev(invested, nil)
	}
	sort.Float64s(invested)
	stats.MedianInvested = stat.Quantile(0.5, stat.Empirical, invested, nil)

	return stats
}
