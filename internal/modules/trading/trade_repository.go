// Package trading provides trade settlement and the immutable trade log.
package trading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade.
const tradesColumns = `id, user_id, trade_type, asset_type, symbol, quantity, price_per_unit, total_value,
	executed_at, executed_by, created_at`

// TradeRepository handles trade database operations
type TradeRepository struct {
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Create appends a trade record
func (r *TradeRepository) Create(ctx context.Context, q database.Querier, trade *domain.Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	now := time.Now()
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = now
	}
	trade.CreatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO trades
		(id, user_id, trade_type, asset_type, symbol, quantity, price_per_unit, total_value,
		 executed_at, executed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID,
		trade.UserID,
		string(trade.TradeType),
		string(trade.AssetType),
		trade.Symbol,
		trade.Quantity.String(),
		trade.PricePerUnit.String(),
		trade.TotalValue.String(),
		trade.ExecutedAt.UnixNano(),
		trade.ExecutedBy,
		trade.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	return nil
}

// GetByID returns a trade, or nil if absent
func (r *TradeRepository) GetByID(ctx context.Context, q database.Querier, id string) (*domain.Trade, error) {
	row := q.QueryRowContext(ctx, "SELECT "+tradesColumns+" FROM trades WHERE id = ?", id)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", id, err)
	}
	return &trade, nil
}

// ListByUser returns a user's trades in execution order
func (r *TradeRepository) ListByUser(ctx context.Context, q database.Querier, userID string) ([]domain.Trade, error) {
	return r.list(ctx, q,
		"SELECT "+tradesColumns+" FROM trades WHERE user_id = ? ORDER BY executed_at, rowid",
		userID)
}

// ListAll returns every trade grouped by user, each group in execution order
func (r *TradeRepository) ListAll(ctx context.Context, q database.Querier) ([]domain.Trade, error) {
	return r.list(ctx, q, "SELECT "+tradesColumns+" FROM trades ORDER BY user_id, executed_at, rowid")
}

// CountByUser returns the number of trades a user has
func (r *TradeRepository) CountByUser(ctx context.Context, q database.Querier, userID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// Delete removes a trade record. It does not touch holdings.
func (r *TradeRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM trades WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete trade %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundError("trade", id)
	}
	return nil
}

func (r *TradeRepository) list(ctx context.Context, q database.Querier, query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (domain.Trade, error) {
	var t domain.Trade
	var tradeType, assetType string
	var executedAt, createdAt int64

	err := s.Scan(
		&t.ID,
		&t.UserID,
		&tradeType,
		&assetType,
		&t.Symbol,
		&t.Quantity,
		&t.PricePerUnit,
		&t.TotalValue,
		&executedAt,
		&t.ExecutedBy,
		&createdAt,
	)
	if err != nil {
		return t, err
	}

	t.TradeType = domain.TradeType(tradeType)
	t.AssetType = domain.AssetType(assetType)
	t.ExecutedAt = time.Unix(0, executedAt)
	t.CreatedAt = time.Unix(0, createdAt)
	return t, nil
}
