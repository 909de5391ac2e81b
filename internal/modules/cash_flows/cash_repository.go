// Package cash_flows records deposits and withdrawals and moves the cash holdings they affect.
// This file implements the CashRepository, which treats CASH holdings as per-currency balances.
package cash_flows

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

// CashRepository reads and adjusts cash balances.
// A cash balance is the quantity of the portfolio's CASH holding whose symbol is the
// currency code. There is no separate balance table: the holding is the balance, so
// every adjustment is visible to valuation without any synchronisation step.
//
// A balance that reaches zero (or would go below it) is removed, never stored.
type CashRepository struct {
	holdings *holdings.Repository // Holding store backing every balance
	log      zerolog.Logger       // Structured logger
}

// NewCashRepository creates a new cash repository.
//
// Parameters:
//   - holdingRepo: Holding repository the balances live in
//   - log: Structured logger
//
// Returns:
//   - *CashRepository: Initialized repository instance
func NewCashRepository(holdingRepo *holdings.Repository, log zerolog.Logger) *CashRepository {
	return &CashRepository{
		holdings: holdingRepo,
		log:      log.With().Str("repo", "cash").Logger(),
	}
}

// Balance returns the cash balance for a currency.
// An absent cash holding is a zero balance, not an error.
//
// Parameters:
//   - ctx: Context for the query
//   - q: Connection or transaction to read through
//   - portfolioID: Portfolio owning the balance
//   - currency: Currency code (e.g., "USD")
//
// Returns:
//   - decimal.Decimal: Balance amount (zero if absent)
//   - error: Error if the query fails
func (r *CashRepository) Balance(ctx context.Context, q database.Querier, portfolioID, currency string) (decimal.Decimal, error) {
	h, err := r.holdings.Get(ctx, q, portfolioID, currency, domain.AssetTypeCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cash balance for %s: %w", currency, err)
	}
	if h == nil {
		return decimal.Zero, nil
	}
	return h.Quantity, nil
}

// Adjust moves a cash balance by change.
// The rules are:
//   - an existing holding is moved by change and deleted if the result is zero or below
//   - an absent holding is created only when change is positive
//   - a negative change against an absent holding does nothing
//
// Parameters:
//   - ctx: Context for the operation
//   - q: Transaction to write through
//   - portfolioID: Portfolio owning the balance
//   - currency: Currency code
//   - change: Signed amount to add
//   - now: Timestamp recorded on the holding
//
// Returns:
//   - decimal.Decimal: Balance after the adjustment (zero if deleted or absent)
//   - error: Error if the database operation fails
func (r *CashRepository) Adjust(ctx context.Context, q database.Querier, portfolioID, currency string, change decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	h, err := r.holdings.Get(ctx, q, portfolioID, currency, domain.AssetTypeCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cash balance for %s: %w", currency, err)
	}

	if h == nil {
		if !change.IsPositive() {
			r.log.Debug().
				Str("portfolio_id", portfolioID).
				Str("currency", currency).
				Str("change", change.String()).
				Msg("No cash holding to debit, skipping")
			return decimal.Zero, nil
		}
		h = domain.NewCashHolding(portfolioID, currency, change, now)
	} else {
		if change.IsNegative() && h.Quantity.LessThan(change.Neg()) {
			r.log.Warn().
				Str("portfolio_id", portfolioID).
				Str("currency", currency).
				Str("balance", h.Quantity.String()).
				Str("change", change.String()).
				Msg("Cash debit exceeds balance, removing cash holding")
		}
		h.Quantity = h.Quantity.Add(change)
		h.LastPriceUpdate = now
	}

	alive, err := r.holdings.Apply(ctx, q, h)
	if err != nil {
		return decimal.Zero, err
	}
	if !alive {
		return decimal.Zero, nil
	}
	return h.Quantity, nil
}
