// Package portfolio provides portfolio persistence, valuation recomputation and the read API.
package portfolio

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
	"github.com/shopspring/decimal"
)

// portfoliosColumns is the column list shared by every SELECT.
// Order must match scanPortfolio.
const portfoliosColumns = `id, user_id, total_value, crypto_value, stock_value, cash_value, commodity_value,
	total_invested, total_profit_loss, last_updated, created_at, version`

// Repository handles portfolio database operations
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// GetByUser returns the user's portfolio, or nil if none exists
func (r *Repository) GetByUser(ctx context.Context, q database.Querier, userID string) (*domain.Portfolio, error) {
	row := q.QueryRowContext(ctx, "SELECT "+portfoliosColumns+" FROM portfolios WHERE user_id = ?", userID)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio for user %s: %w", userID, err)
	}
	return &p, nil
}

// GetByID returns a portfolio by ID, or nil if none exists
func (r *Repository) GetByID(ctx context.Context, q database.Querier, id string) (*domain.Portfolio, error) {
	row := q.QueryRowContext(ctx, "SELECT "+portfoliosColumns+" FROM portfolios WHERE id = ?", id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}
	return &p, nil
}

// GetOrCreate returns the user's portfolio, creating a zeroed one on first use
func (r *Repository) GetOrCreate(ctx context.Context, q database.Querier, userID string) (*domain.Portfolio, error) {
	p, err := r.GetByUser(ctx, q, userID)
	if err != nil || p != nil {
		return p, err
	}

	now := time.Now()
	p = &domain.Portfolio{
		ID:          uuid.NewString(),
		UserID:      userID,
		LastUpdated: now,
		CreatedAt:   now,
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO portfolios
		(id, user_id, total_value, crypto_value, stock_value, cash_value, commodity_value,
		 total_invested, total_profit_loss, last_updated, created_at, version)
		VALUES (?, ?, '0', '0', '0', '0', '0', '0', '0', ?, ?, 0)
	`, p.ID, p.UserID, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio for user %s: %w", userID, err)
	}

	r.log.Info().
		Str("user_id", userID).
		Str("portfolio_id", p.ID).
		Msg("Portfolio created")

	return p, nil
}

// Save writes every aggregate field. The write only succeeds if the stored version still
// matches p.Version; otherwise ErrStorageConflict is returned. On success p.Version is bumped.
func (r *Repository) Save(ctx context.Context, q database.Querier, p *domain.Portfolio) error {
	result, err := q.ExecContext(ctx, `
		UPDATE portfolios SET
			total_value = ?, crypto_value = ?, stock_value = ?, cash_value = ?, commodity_value = ?,
			total_invested = ?, total_profit_loss = ?, last_updated = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		p.TotalValue.String(),
		p.CryptoValue.String(),
		p.StockValue.String(),
		p.CashValue.String(),
		p.CommodityValue.String(),
		p.TotalInvested.String(),
		p.TotalProfitLoss.String(),
		p.LastUpdated.UnixNano(),
		p.ID,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save portfolio %s: %w", p.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("portfolio %s version %d: %w", p.ID, p.Version, domain.ErrStorageConflict)
	}

	p.Version++
	return nil
}

// AdjustTotalInvested adds delta (possibly negative) to the running invested total and saves
func (r *Repository) AdjustTotalInvested(ctx context.Context, q database.Querier, p *domain.Portfolio, delta decimal.Decimal) error {
	p.TotalInvested = p.TotalInvested.Add(delta)
	if err := r.Save(ctx, q, p); err != nil {
		return err
	}

	r.log.Debug().
		Str("portfolio_id", p.ID).
		Str("delta", delta.String()).
		Str("total_invested", p.TotalInvested.String()).
		Msg("Total invested adjusted")

	return nil
}

// ListAll returns every portfolio ordered by user
func (r *Repository) ListAll(ctx context.Context, q database.Querier) ([]domain.Portfolio, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+portfoliosColumns+" FROM portfolios ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(s scanner) (domain.Portfolio, error) {
	var p domain.Portfolio
	var lastUpdated, createdAt int64

	err := s.Scan(
		&p.ID,
		&p.UserID,
		&p.TotalValue,
		&p.CryptoValue,
		&p.StockValue,
		&p.CashValue,
		&p.CommodityValue,
		&p.TotalInvested,
		&p.TotalProfitLoss,
		&lastUpdated,
		&createdAt,
		&p.Version,
	)
	if err != nil {
		return p, err
	}

	p.LastUpdated = time.Unix(0, lastUpdated)
	p.CreatedAt = time.Unix(0, createdAt)
	return p, nil
}
