package cash_flows

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/metrics"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Audit action names
const (
	ActionTransactionRecorded = "TRANSACTION_RECORDED"
	ActionTransactionDeleted  = "TRANSACTION_DELETED"
	auditTargetTransaction    = "TRANSACTION"
)

// TransactionRequest is an operator-recorded deposit or withdrawal
type TransactionRequest struct {
	UserID          string
	TransactionType domain.TransactionType
	Amount          decimal.Decimal
	Currency        string // defaults to the base currency
	ProcessedBy     string
}

// Validate checks the request and normalises its currency
func (r *TransactionRequest) Validate() error {
	if err := domain.RequireNonEmpty("user_id", r.UserID); err != nil {
		return err
	}
	if r.TransactionType != domain.TransactionTypeDeposit && r.TransactionType != domain.TransactionTypeWithdrawal {
		return domain.NewValidationError("transaction_type", fmt.Sprintf("unknown transaction type %q", r.TransactionType))
	}
	if err := domain.RequirePositive("amount", r.Amount); err != nil {
		return err
	}
	currency, err := domain.NormalizeCurrency(r.Currency)
	if err != nil {
		return err
	}
	r.Currency = currency
	return nil
}

// TransactionResult is a recorded transaction and the recomputed portfolio
type TransactionResult struct {
	Transaction domain.Transaction `json:"transaction"`
	Portfolio   domain.Portfolio   `json:"portfolio"`
}

// DeleteResult describes what deleting a transaction did to the ledger
type DeleteResult struct {
	Transaction domain.Transaction `json:"transaction"`
	Reversed    bool               `json:"ledger_reversed"`
}

// SettlementService applies deposits and withdrawals to cash holdings
type SettlementService struct {
	coordinator  *ledger.Coordinator
	transactions *TransactionRepository
	cash         *CashRepository
	portfolios   *portfolio.Repository
	valuation    *portfolio.Valuation
	audit        domain.AuditSink
	events       *events.Manager
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewSettlementService creates a new cash flow settlement service.
// audit, eventManager and m may be nil.
func NewSettlementService(
	coordinator *ledger.Coordinator,
	transactions *TransactionRepository,
	cash *CashRepository,
	portfolios *portfolio.Repository,
	valuation *portfolio.Valuation,
	audit domain.AuditSink,
	eventManager *events.Manager,
	m *metrics.Metrics,
	log zerolog.Logger,
) *SettlementService {
	if audit == nil {
		audit = domain.NoopAuditSink{}
	}
	return &SettlementService{
		coordinator:  coordinator,
		transactions: transactions,
		cash:         cash,
		portfolios:   portfolios,
		valuation:    valuation,
		audit:        audit,
		events:       eventManager,
		metrics:      m,
		log:          log.With().Str("service", "cash_settlement").Logger(),
	}
}

// RecordTransaction records a completed deposit or withdrawal and moves cash accordingly.
// Only deposits count towards total invested; withdrawals leave it unchanged.
func (s *SettlementService) RecordTransaction(ctx context.Context, req TransactionRequest) (result *TransactionResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSettlement("transaction", err, time.Since(start)) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	change := req.Amount
	if req.TransactionType == domain.TransactionTypeWithdrawal {
		change = change.Neg()
	}

	err = s.coordinator.Run(ctx, req.UserID, func(tx *sql.Tx) error {
		p, err := s.portfolios.GetOrCreate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		now := time.Now()
		txn := domain.Transaction{
			UserID:          req.UserID,
			TransactionType: req.TransactionType,
			Amount:          req.Amount,
			Currency:        req.Currency,
			Status:          domain.TransactionStatusCompleted,
			ProcessedBy:     req.ProcessedBy,
			ProcessedAt:     &now,
		}
		if err := s.transactions.Create(ctx, tx, &txn); err != nil {
			return err
		}

		if _, err := s.cash.Adjust(ctx, tx, p.ID, req.Currency, change, now); err != nil {
			return err
		}

		if req.TransactionType == domain.TransactionTypeDeposit {
			if err := s.portfolios.AdjustTotalInvested(ctx, tx, p, req.Amount); err != nil {
				return err
			}
		}

		updated, err := s.valuation.Recompute(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		result = &TransactionResult{Transaction: txn, Portfolio: *updated}
		return nil
	})
	if err != nil {
		s.logFailure(err, req)
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", result.Transaction.ID).
		Str("user_id", req.UserID).
		Str("transaction_type", string(req.TransactionType)).
		Str("amount", req.Amount.String()).
		Str("currency", req.Currency).
		Msg("Transaction recorded")

	s.audit.Record(ctx, req.ProcessedBy, ActionTransactionRecorded, auditTargetTransaction, result.Transaction.ID,
		fmt.Sprintf("%s of %s for user %s",
			req.TransactionType, domain.FormatMoney(req.Amount, req.Currency), req.UserID),
		map[string]interface{}{
			"user_id":          req.UserID,
			"transaction_type": string(req.TransactionType),
			"amount":           req.Amount.String(),
			"currency":         req.Currency,
		})

	if s.events != nil {
		s.events.EmitTyped("cash_flows", &events.TransactionRecordedData{
			TransactionID:   result.Transaction.ID,
			UserID:          req.UserID,
			TransactionType: string(req.TransactionType),
			Amount:          req.Amount.String(),
			Currency:        req.Currency,
		})
	}

	return result, nil
}

// DeleteTransaction deletes a transaction record, first reversing its cash effect if it completed.
// Reversal is fail-soft: a deposit whose cash has since been spent only removes what is left.
func (s *SettlementService) DeleteTransaction(ctx context.Context, transactionID, actorID string) (result *DeleteResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSettlement("transaction_delete", err, time.Since(start)) }()

	existing, err := s.transactions.GetByID(ctx, s.coordinator.DB(), transactionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.NotFoundError("transaction", transactionID)
	}

	err = s.coordinator.Run(ctx, existing.UserID, func(tx *sql.Tx) error {
		// Re-read under the lock; a concurrent delete may have won.
		txn, err := s.transactions.GetByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.NotFoundError("transaction", transactionID)
		}

		reversed := false
		if txn.IsCompleted() {
			reversed, err = s.reverse(ctx, tx, txn)
			if err != nil {
				return err
			}
		}

		if err := s.transactions.Delete(ctx, tx, transactionID); err != nil {
			return err
		}

		result = &DeleteResult{Transaction: *txn, Reversed: reversed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	txn := result.Transaction
	s.log.Info().
		Str("transaction_id", transactionID).
		Str("user_id", txn.UserID).
		Str("status", string(txn.Status)).
		Bool("ledger_reversed", result.Reversed).
		Str("actor_id", actorID).
		Msg("Transaction deleted")

	s.audit.Record(ctx, actorID, ActionTransactionDeleted, auditTargetTransaction, transactionID,
		fmt.Sprintf("Deleted %s %s of %s for user %s",
			txn.Status, txn.TransactionType, domain.FormatMoney(txn.Amount, txn.Currency), txn.UserID),
		map[string]interface{}{
			"user_id":          txn.UserID,
			"transaction_type": string(txn.TransactionType),
			"amount":           txn.Amount.String(),
			"currency":         txn.Currency,
			"status":           string(txn.Status),
			"ledger_reversed":  result.Reversed,
		})

	if s.events != nil {
		s.events.EmitTyped("cash_flows", &events.TransactionReversedData{
			TransactionID:   transactionID,
			UserID:          txn.UserID,
			TransactionType: string(txn.TransactionType),
			Amount:          txn.Amount.String(),
			Currency:        txn.Currency,
			Reversed:        result.Reversed,
		})
	}

	return result, nil
}

// reverse undoes a completed transaction's cash and invested effect and recomputes.
// Returns false when the customer has no portfolio to reverse against.
func (s *SettlementService) reverse(ctx context.Context, tx *sql.Tx, txn *domain.Transaction) (bool, error) {
	p, err := s.portfolios.GetByUser(ctx, tx, txn.UserID)
	if err != nil {
		return false, err
	}
	if p == nil {
		s.log.Warn().
			Str("transaction_id", txn.ID).
			Str("user_id", txn.UserID).
			Msg("No portfolio for completed transaction, deleting record only")
		return false, nil
	}

	now := time.Now()
	switch txn.TransactionType {
	case domain.TransactionTypeDeposit:
		if _, err := s.cash.Adjust(ctx, tx, p.ID, txn.Currency, txn.Amount.Neg(), now); err != nil {
			return false, err
		}
		if err := s.portfolios.AdjustTotalInvested(ctx, tx, p, txn.Amount.Neg()); err != nil {
			return false, err
		}
	case domain.TransactionTypeWithdrawal:
		if _, err := s.cash.Adjust(ctx, tx, p.ID, txn.Currency, txn.Amount, now); err != nil {
			return false, err
		}
	}

	if _, err := s.valuation.Recompute(ctx, tx, p.ID); err != nil {
		return false, err
	}
	return true, nil
}

// ListTransactions returns a user's transactions, newest first
func (s *SettlementService) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return s.transactions.ListByUser(ctx, s.coordinator.DB(), userID)
}

// GetTransaction returns a transaction by ID
func (s *SettlementService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, s.coordinator.DB(), transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.NotFoundError("transaction", transactionID)
	}
	return txn, nil
}

func (s *SettlementService) logFailure(err error, req TransactionRequest) {
	event := s.log.Error()
	if metrics.Outcome(err) == metrics.OutcomeRejected {
		event = s.log.Warn()
	}
	event.
		Err(err).
		Str("user_id", req.UserID).
		Str("transaction_type", string(req.TransactionType)).
		Str("amount", req.Amount.String()).
		Msg("Transaction rejected")
}
