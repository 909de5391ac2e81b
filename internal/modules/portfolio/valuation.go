package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Totals are the aggregate values derived from a holding set
type Totals struct {
	CryptoValue     decimal.Decimal `json:"crypto_value"`
	StockValue      decimal.Decimal `json:"stock_value"`
	CashValue       decimal.Decimal `json:"cash_value"`
	CommodityValue  decimal.Decimal `json:"commodity_value"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalProfitLoss decimal.Decimal `json:"total_profit_loss"`
}

// Compute derives portfolio totals from holdings and the independent invested total.
// It is a pure function: totals never depend on previously stored aggregates.
func Compute(hs []domain.Holding, totalInvested decimal.Decimal) Totals {
	var t Totals
	for _, h := range hs {
		switch h.AssetType {
		case domain.AssetTypeCrypto:
			t.CryptoValue = t.CryptoValue.Add(h.MarketValue)
		case domain.AssetTypeStock:
			t.StockValue = t.StockValue.Add(h.MarketValue)
		case domain.AssetTypeCash:
			t.CashValue = t.CashValue.Add(h.MarketValue)
		case domain.AssetTypeCommodity:
			t.CommodityValue = t.CommodityValue.Add(h.MarketValue)
		}
	}
	t.TotalValue = t.CryptoValue.Add(t.StockValue).Add(t.CashValue).Add(t.CommodityValue)
	t.TotalProfitLoss = t.TotalValue.Sub(totalInvested)
	return t
}

// Apply copies the totals onto p
func (t Totals) Apply(p *domain.Portfolio) {
	p.CryptoValue = t.CryptoValue
	p.StockValue = t.StockValue
	p.CashValue = t.CashValue
	p.CommodityValue = t.CommodityValue
	p.TotalValue = t.TotalValue
	p.TotalProfitLoss = t.TotalProfitLoss
}

// Valuation recomputes and persists portfolio aggregates
type Valuation struct {
	portfolios *Repository
	holdings   *holdings.Repository
	log        zerolog.Logger
}

// NewValuation creates a new valuation recomputer
func NewValuation(portfolios *Repository, holdingRepo *holdings.Repository, log zerolog.Logger) *Valuation {
	return &Valuation{
		portfolios: portfolios,
		holdings:   holdingRepo,
		log:        log.With().Str("component", "valuation").Logger(),
	}
}

// Recompute reloads the portfolio and its holdings through q, recomputes every derived
// field and saves with LastUpdated = now. TotalInvested is read, never modified.
// Callers run it inside the same transaction as the holding mutation it follows.
func (v *Valuation) Recompute(ctx context.Context, q database.Querier, portfolioID string) (*domain.Portfolio, error) {
	p, err := v.portfolios.GetByID(ctx, q, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NotFoundError("portfolio", portfolioID)
	}

	hs, err := v.holdings.ListByPortfolio(ctx, q, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings for valuation: %w", err)
	}

	Compute(hs, p.TotalInvested).Apply(p)
	p.LastUpdated = time.Now()

	if err := v.portfolios.Save(ctx, q, p); err != nil {
		return nil, err
	}

	v.log.Debug().
		Str("portfolio_id", p.ID).
		Int("holdings", len(hs)).
		Str("total_value", p.TotalValue.String()).
		Str("total_profit_loss", p.TotalProfitLoss.String()).
		Msg("Portfolio recomputed")

	return p, nil
}
