package cash_flows

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/metrics"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/portfolio"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var d = testingpkg.D

type mockAuditSink struct {
	mock.Mock
}

func (m *mockAuditSink) Record(ctx context.Context, actorID, actionType, targetType, targetID, description string, metadata map[string]interface{}) {
	m.Called(ctx, actorID, actionType, targetType, targetID, description, metadata)
}

type testEnv struct {
	db           *sql.DB
	service      *SettlementService
	transactions *TransactionRepository
	portfolios   *portfolio.Repository
	holdings     *holdings.Repository
	bus          *events.Bus
	metrics      *metrics.Metrics
}

func setupEnv(t *testing.T, audit domain.AuditSink) *testEnv {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	portfolios := portfolio.NewRepository(log)
	holdingRepo := holdings.NewRepository(log)
	valuation := portfolio.NewValuation(portfolios, holdingRepo, log)
	coordinator := ledger.NewCoordinator(db.Conn(), ledger.Config{LockTimeout: 10 * time.Second, MaxRetries: 3}, nil, log)
	transactions := NewTransactionRepository(log)
	bus := events.NewBus(log)
	m := metrics.New()

	return &testEnv{
		db: db.Conn(),
		service: NewSettlementService(coordinator, transactions, NewCashRepository(holdingRepo, log),
			portfolios, valuation, audit, events.NewManager(bus, log), m, log),
		transactions: transactions,
		portfolios:   portfolios,
		holdings:     holdingRepo,
		bus:          bus,
		metrics:      m,
	}
}

func (e *testEnv) cash(t *testing.T, userID, currency string) *domain.Holding {
	p, err := e.portfolios.GetByUser(context.Background(), e.db, userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	h, err := e.holdings.Get(context.Background(), e.db, p.ID, currency, domain.AssetTypeCash)
	require.NoError(t, err)
	return h
}

func (e *testEnv) portfolio(t *testing.T, userID string) *domain.Portfolio {
	p, err := e.portfolios.GetByUser(context.Background(), e.db, userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (e *testEnv) record(t *testing.T, userID string, tt domain.TransactionType, amount string) *TransactionResult {
	result, err := e.service.RecordTransaction(context.Background(), TransactionRequest{
		UserID:          userID,
		TransactionType: tt,
		Amount:          d(amount),
		ProcessedBy:     "admin",
	})
	require.NoError(t, err)
	return result
}

func TestRecordTransaction_DepositCreatesCash(t *testing.T) {
	env := setupEnv(t, nil)

	result := env.record(t, "u1", domain.TransactionTypeDeposit, "1000")

	txn := result.Transaction
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "USD", txn.Currency)
	assert.Equal(t, "admin", txn.ProcessedBy)
	require.NotNil(t, txn.ProcessedAt)

	cash := env.cash(t, "u1", "USD")
	require.NotNil(t, cash)
	assert.Equal(t, "USD Cash", cash.Name)
	assert.True(t, cash.Quantity.Equal(d("1000")))

	assert.True(t, result.Portfolio.CashValue.Equal(d("1000")))
	assert.True(t, result.Portfolio.TotalValue.Equal(d("1000")))
	assert.True(t, result.Portfolio.TotalInvested.Equal(d("1000")))
	assert.True(t, result.Portfolio.TotalProfitLoss.IsZero())

	stored, err := env.transactions.GetByID(context.Background(), env.db, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Amount.Equal(d("1000")))
	assert.True(t, stored.IsCompleted())
}

func TestRecordTransaction_WithdrawalLeavesInvestedUnchanged(t *testing.T) {
	env := setupEnv(t, nil)

	env.record(t, "u1", domain.TransactionTypeDeposit, "1000")
	result := env.record(t, "u1", domain.TransactionTypeWithdrawal, "300")

	assert.True(t, env.cash(t, "u1", "USD").Quantity.Equal(d("700")))
	assert.True(t, result.Portfolio.TotalValue.Equal(d("700")))
	assert.True(t, result.Portfolio.TotalInvested.Equal(d("1000")))
	assert.True(t, result.Portfolio.TotalProfitLoss.Equal(d("-300")))
}

func TestRecordTransaction_FullWithdrawalDeletesCash(t *testing.T) {
	env := setupEnv(t, nil)

	env.record(t, "u1", domain.TransactionTypeDeposit, "1000")
	result := env.record(t, "u1", domain.TransactionTypeWithdrawal, "1000")

	assert.Nil(t, env.cash(t, "u1", "USD"), "cash holding at zero must not exist")
	assert.True(t, result.Portfolio.TotalValue.IsZero())
	assert.True(t, result.Portfolio.TotalInvested.Equal(d("1000")))
}

func TestRecordTransaction_WithdrawalWithoutCash(t *testing.T) {
	env := setupEnv(t, nil)

	result := env.record(t, "u1", domain.TransactionTypeWithdrawal, "50")

	assert.Nil(t, env.cash(t, "u1", "USD"))
	assert.True(t, result.Portfolio.TotalValue.IsZero())
	assert.True(t, result.Portfolio.TotalInvested.IsZero())
}

func TestRecordTransaction_OtherCurrency(t *testing.T) {
	env := setupEnv(t, nil)

	result, err := env.service.RecordTransaction(context.Background(), TransactionRequest{
		UserID:          "u1",
		TransactionType: domain.TransactionTypeDeposit,
		Amount:          d("200"),
		Currency:        "eur",
		ProcessedBy:     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", result.Transaction.Currency)

	eur := env.cash(t, "u1", "EUR")
	require.NotNil(t, eur)
	assert.Equal(t, "EUR Cash", eur.Name)
	assert.Nil(t, env.cash(t, "u1", "USD"))
}

func TestRecordTransaction_Validation(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   TransactionRequest
		field string
	}{
		{"missing user", TransactionRequest{TransactionType: domain.TransactionTypeDeposit, Amount: d("1")}, "user_id"},
		{"unknown type", TransactionRequest{UserID: "u1", TransactionType: "TRANSFER", Amount: d("1")}, "transaction_type"},
		{"zero amount", TransactionRequest{UserID: "u1", TransactionType: domain.TransactionTypeDeposit, Amount: d("0")}, "amount"},
		{"negative amount", TransactionRequest{UserID: "u1", TransactionType: domain.TransactionTypeWithdrawal, Amount: d("-5")}, "amount"},
		{"unknown currency", TransactionRequest{UserID: "u1", TransactionType: domain.TransactionTypeDeposit, Amount: d("1"), Currency: "QQQQ"}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.RecordTransaction(ctx, tt.req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	p, err := env.portfolios.GetByUser(ctx, env.db, "u1")
	require.NoError(t, err)
	assert.Nil(t, p, "rejected requests must not create a portfolio")
}

func TestDeleteTransaction_ReversesDeposit(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	env.record(t, "u1", domain.TransactionTypeDeposit, "500")
	deposit := env.record(t, "u1", domain.TransactionTypeDeposit, "500")

	result, err := env.service.DeleteTransaction(ctx, deposit.Transaction.ID, "admin")
	require.NoError(t, err)
	assert.True(t, result.Reversed)

	assert.True(t, env.cash(t, "u1", "USD").Quantity.Equal(d("500")))
	p := env.portfolio(t, "u1")
	assert.True(t, p.TotalInvested.Equal(d("500")))
	assert.True(t, p.TotalValue.Equal(d("500")))

	stored, err := env.transactions.GetByID(ctx, env.db, deposit.Transaction.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestDeleteTransaction_DepositAlreadySpent(t *testing.T) {
	env := setupEnv(t, nil)

	deposit := env.record(t, "u1", domain.TransactionTypeDeposit, "100")
	env.record(t, "u1", domain.TransactionTypeWithdrawal, "80")

	result, err := env.service.DeleteTransaction(context.Background(), deposit.Transaction.ID, "admin")
	require.NoError(t, err)
	assert.True(t, result.Reversed)

	assert.Nil(t, env.cash(t, "u1", "USD"))
	p := env.portfolio(t, "u1")
	assert.True(t, p.TotalInvested.IsZero())
	assert.True(t, p.TotalValue.IsZero())
}

func TestDeleteTransaction_ReversesWithdrawal(t *testing.T) {
	env := setupEnv(t, nil)

	env.record(t, "u1", domain.TransactionTypeDeposit, "500")
	withdrawal := env.record(t, "u1", domain.TransactionTypeWithdrawal, "500")
	require.Nil(t, env.cash(t, "u1", "USD"))

	result, err := env.service.DeleteTransaction(context.Background(), withdrawal.Transaction.ID, "admin")
	require.NoError(t, err)
	assert.True(t, result.Reversed)

	cash := env.cash(t, "u1", "USD")
	require.NotNil(t, cash, "reversing a withdrawal recreates the cash holding")
	assert.Equal(t, "USD Cash", cash.Name)
	assert.True(t, cash.Quantity.Equal(d("500")))

	p := env.portfolio(t, "u1")
	assert.True(t, p.TotalValue.Equal(d("500")))
	assert.True(t, p.TotalInvested.Equal(d("500")))
}

func TestDeleteTransaction_PendingHasNoLedgerEffect(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	env.record(t, "u1", domain.TransactionTypeDeposit, "300")
	before := env.portfolio(t, "u1")

	pending := &domain.Transaction{
		UserID:          "u1",
		TransactionType: domain.TransactionTypeDeposit,
		Amount:          d("1000"),
		Currency:        "USD",
		Status:          domain.TransactionStatusPending,
		ProcessedBy:     "u1",
	}
	require.NoError(t, env.transactions.Create(ctx, env.db, pending))

	result, err := env.service.DeleteTransaction(ctx, pending.ID, "admin")
	require.NoError(t, err)
	assert.False(t, result.Reversed)
	assert.Equal(t, domain.TransactionStatusPending, result.Transaction.Status)

	assert.True(t, env.cash(t, "u1", "USD").Quantity.Equal(d("300")))
	after := env.portfolio(t, "u1")
	assert.True(t, after.TotalInvested.Equal(before.TotalInvested))
	assert.Equal(t, before.Version, after.Version)
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := env.service.DeleteTransaction(context.Background(), "missing", "admin")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deposit := env.record(t, "u1", domain.TransactionTypeDeposit, "10")
	_, err = env.service.DeleteTransaction(context.Background(), deposit.Transaction.ID, "admin")
	require.NoError(t, err)

	_, err = env.service.DeleteTransaction(context.Background(), deposit.Transaction.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrNotFound, "deleting twice must not reverse twice")
	assert.Nil(t, env.cash(t, "u1", "USD"))
}

func TestRecordTransaction_AuditsAndEmits(t *testing.T) {
	audit := &mockAuditSink{}
	audit.On("Record", mock.Anything, "admin", ActionTransactionRecorded, "TRANSACTION", mock.AnythingOfType("string"),
		"DEPOSIT of $1,000.00 for user u1", mock.Anything).Once()
	audit.On("Record", mock.Anything, "admin", ActionTransactionDeleted, "TRANSACTION", mock.AnythingOfType("string"),
		mock.AnythingOfType("string"), mock.MatchedBy(func(m map[string]interface{}) bool {
			return m["ledger_reversed"] == true
		})).Once()

	env := setupEnv(t, audit)
	sub := env.bus.Subscribe(events.TransactionRecorded, events.TransactionReversed)
	defer env.bus.Unsubscribe(sub)

	result := env.record(t, "u1", domain.TransactionTypeDeposit, "1000")
	_, err := env.service.DeleteTransaction(context.Background(), result.Transaction.ID, "admin")
	require.NoError(t, err)

	audit.AssertExpectations(t)

	recorded := <-sub.C
	assert.Equal(t, events.TransactionRecorded, recorded.Type)
	assert.Equal(t, result.Transaction.ID, recorded.Data["transaction_id"])
	assert.Equal(t, "1000", recorded.Data["amount"])

	reversed := <-sub.C
	assert.Equal(t, events.TransactionReversed, reversed.Type)
	assert.Equal(t, true, reversed.Data["reversed"])

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SettlementsTotal.WithLabelValues("transaction", metrics.OutcomeSuccess)))
}

func TestListTransactions_NewestFirst(t *testing.T) {
	env := setupEnv(t, nil)

	first := env.record(t, "u1", domain.TransactionTypeDeposit, "10")
	second := env.record(t, "u1", domain.TransactionTypeDeposit, "20")
	env.record(t, "u2", domain.TransactionTypeDeposit, "30")

	list, err := env.service.ListTransactions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Transaction.ID, list[0].ID)
	assert.Equal(t, first.Transaction.ID, list[1].ID)

	empty, err := env.service.ListTransactions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCashRepository_Adjust(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()
	repo := NewCashRepository(env.holdings, zerolog.Nop())

	p, err := env.portfolios.GetOrCreate(ctx, env.db, "u1")
	require.NoError(t, err)
	now := time.Now()

	bal, err := repo.Adjust(ctx, env.db, p.ID, "USD", d("-10"), now)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "debit against absent cash is a no-op")

	bal, err = repo.Adjust(ctx, env.db, p.ID, "USD", d("25.5"), now)
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("25.5")))

	bal, err = repo.Adjust(ctx, env.db, p.ID, "USD", d("-40"), now)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	got, err := repo.Balance(ctx, env.db, p.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, decimal.Zero.String(), got.String())
}
