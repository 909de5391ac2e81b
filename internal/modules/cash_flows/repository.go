package cash_flows

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

// transactionsColumns is the list of columns for the transactions table.
// Column order must match scanTransaction.
const transactionsColumns = `id, user_id, transaction_type, amount, currency, status, processed_by,
	processed_at, created_at`

// TransactionRepository handles deposit and withdrawal records stored in ledger.db.
type TransactionRepository struct {
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository.
//
// Parameters:
//   - log: Structured logger
//
// Returns:
//   - *TransactionRepository: Initialized repository instance
func NewTransactionRepository(log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// Create inserts a transaction record.
// ID and CreatedAt are populated when empty.
//
// Parameters:
//   - ctx: Context for the insert
//   - q: Connection or transaction to write through
//   - t: Transaction to create
//
// Returns:
//   - error: Error if the insert fails
func (r *TransactionRepository) Create(ctx context.Context, q database.Querier, t *domain.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	var processedAt sql.NullInt64
	if t.ProcessedAt != nil {
		processedAt = sql.NullInt64{Int64: t.ProcessedAt.UnixNano(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, user_id, transaction_type, amount, currency, status, processed_by, processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.UserID,
		string(t.TransactionType),
		t.Amount.String(),
		t.Currency,
		string(t.Status),
		t.ProcessedBy,
		processedAt,
		t.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID returns a transaction, or nil if absent.
//
// Parameters:
//   - ctx: Context for the query
//   - q: Connection or transaction to read through
//   - id: Transaction ID
//
// Returns:
//   - *domain.Transaction: Transaction or nil if not found
//   - error: Error if the query fails
func (r *TransactionRepository) GetByID(ctx context.Context, q database.Querier, id string) (*domain.Transaction, error) {
	row := q.QueryRowContext(ctx, "SELECT "+transactionsColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return &t, nil
}

// ListByUser returns a user's transactions, newest first.
//
// Parameters:
//   - ctx: Context for the query
//   - q: Connection or transaction to read through
//   - userID: Customer ID
//
// Returns:
//   - []domain.Transaction: Transactions (empty if none)
//   - error: Error if the query fails
func (r *TransactionRepository) ListByUser(ctx context.Context, q database.Querier, userID string) ([]domain.Transaction, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+transactionsColumns+" FROM transactions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// Delete removes a transaction record. Returns a not-found error if nothing was deleted.
//
// Parameters:
//   - ctx: Context for the delete
//   - q: Connection or transaction to write through
//   - id: Transaction ID
//
// Returns:
//   - error: Error if the record is absent or the delete fails
func (r *TransactionRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundError("transaction", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (domain.Transaction, error) {
	var t domain.Transaction
	var transactionType, status string
	var processedAt sql.NullInt64
	var createdAt int64

	err := s.Scan(
		&t.ID,
		&t.UserID,
		&transactionType,
		&t.Amount,
		&t.Currency,
		&status,
		&t.ProcessedBy,
		&processedAt,
		&createdAt,
	)
	if err != nil {
		return t, err
	}

	t.TransactionType = domain.TransactionType(transactionType)
	t.Status = domain.TransactionStatus(status)
	if processedAt.Valid {
		ts := time.Unix(0, processedAt.Int64)
		t.ProcessedAt = &ts
	}
	t.CreatedAt = time.Unix(0, createdAt)
	return t, nil
}
