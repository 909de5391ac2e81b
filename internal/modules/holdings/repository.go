// Package holdings provides the durable per-portfolio holding store.
package holdings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// holdingsColumns is the column list shared by every SELECT.
// Order must match scanHolding.
const holdingsColumns = `id, portfolio_id, symbol, asset_type, name, quantity, average_buy_price,
	cost_basis, current_price, market_value, last_price_update, created_at, updated_at`

// Repository stores holdings in ledger.db.
// Every method takes a database.Querier so it can run inside a settlement transaction.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new holding repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// Get returns the holding for (portfolioID, symbol, assetType), or nil if absent
func (r *Repository) Get(ctx context.Context, q database.Querier, portfolioID, symbol string, assetType domain.AssetType) (*domain.Holding, error) {
	query := "SELECT " + holdingsColumns + " FROM holdings WHERE portfolio_id = ? AND symbol = ? AND asset_type = ?"

	row := q.QueryRowContext(ctx, query, portfolioID, normalizeSymbol(symbol), string(assetType))
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding %s/%s: %w", symbol, assetType, err)
	}
	return &h, nil
}

// Upsert inserts or replaces a holding. Non-positive quantities are rejected:
// callers must Delete instead of storing an empty position.
func (r *Repository) Upsert(ctx context.Context, q database.Querier, h *domain.Holding) error {
	if err := domain.RequirePositive("quantity", h.Quantity); err != nil {
		return err
	}
	if !h.AssetType.IsValid() {
		return domain.NewValidationError("asset_type", fmt.Sprintf("unknown asset type %q", h.AssetType))
	}

	now := time.Now()
	h.Symbol = normalizeSymbol(h.Symbol)
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	if h.LastPriceUpdate.IsZero() {
		h.LastPriceUpdate = now
	}
	h.UpdatedAt = now

	query := `
		INSERT INTO holdings
		(id, portfolio_id, symbol, asset_type, name, quantity, average_buy_price,
		 cost_basis, current_price, market_value, last_price_update, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol, asset_type) DO UPDATE SET
			name = excluded.name,
			quantity = excluded.quantity,
			average_buy_price = excluded.average_buy_price,
			cost_basis = excluded.cost_basis,
			current_price = excluded.current_price,
			market_value = excluded.market_value,
			last_price_update = excluded.last_price_update,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		h.ID,
		h.PortfolioID,
		h.Symbol,
		string(h.AssetType),
		h.Name,
		h.Quantity.String(),
		h.AverageBuyPrice.String(),
		h.CostBasis.String(),
		h.CurrentPrice.String(),
		h.MarketValue.String(),
		h.LastPriceUpdate.UnixNano(),
		h.CreatedAt.UnixNano(),
		h.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding %s/%s: %w", h.Symbol, h.AssetType, err)
	}

	r.log.Debug().
		Str("portfolio_id", h.PortfolioID).
		Str("symbol", h.Symbol).
		Str("asset_type", string(h.AssetType)).
		Str("quantity", h.Quantity.String()).
		Msg("Holding upserted")

	return nil
}

// Delete removes the holding for (portfolioID, symbol, assetType).
// Deleting an absent holding is not an error.
func (r *Repository) Delete(ctx context.Context, q database.Querier, portfolioID, symbol string, assetType domain.AssetType) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM holdings WHERE portfolio_id = ? AND symbol = ? AND asset_type = ?",
		portfolioID, normalizeSymbol(symbol), string(assetType))
	if err != nil {
		return fmt.Errorf("failed to delete holding %s/%s: %w", symbol, assetType, err)
	}

	r.log.Debug().
		Str("portfolio_id", portfolioID).
		Str("symbol", symbol).
		Str("asset_type", string(assetType)).
		Msg("Holding deleted")

	return nil
}

// Apply is the explicit persist-or-delete transition: a holding with a positive quantity
// is upserted, anything else is deleted. Reports whether the holding still exists.
func (r *Repository) Apply(ctx context.Context, q database.Querier, h *domain.Holding) (bool, error) {
	if h.Quantity.IsPositive() {
		h.Revalue()
		if err := r.Upsert(ctx, q, h); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := r.Delete(ctx, q, h.PortfolioID, h.Symbol, h.AssetType); err != nil {
		return false, err
	}
	return false, nil
}

// ListByPortfolio returns every holding of a portfolio ordered by asset type and symbol
func (r *Repository) ListByPortfolio(ctx context.Context, q database.Querier, portfolioID string) ([]domain.Holding, error) {
	query := "SELECT " + holdingsColumns + " FROM holdings WHERE portfolio_id = ? ORDER BY asset_type, symbol"

	rows, err := q.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(s scanner) (domain.Holding, error) {
	var h domain.Holding
	var assetType string
	var lastPriceUpdate, createdAt, updatedAt int64

	err := s.Scan(
		&h.ID,
		&h.PortfolioID,
		&h.Symbol,
		&assetType,
		&h.Name,
		&h.Quantity,
		&h.AverageBuyPrice,
		&h.CostBasis,
		&h.CurrentPrice,
		&h.MarketValue,
		&lastPriceUpdate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return h, err
	}

	h.AssetType = domain.AssetType(assetType)
	h.LastPriceUpdate = time.Unix(0, lastPriceUpdate)
	h.CreatedAt = time.Unix(0, createdAt)
	h.UpdatedAt = time.Unix(0, updatedAt)
	return h, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
