package trading

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/metrics"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Audit action names
const (
	ActionTradeExecuted = "TRADE_EXECUTED"
	ActionTradeDeleted  = "TRADE_DELETED"
	auditTargetTrade    = "TRADE"
)

// TradeRequest is an operator-issued buy or sell
type TradeRequest struct {
	UserID       string
	TradeType    domain.TradeType
	AssetType    domain.AssetType
	Symbol       string
	Name         string // display name for a newly opened holding; defaults to the symbol
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	ExecutedBy   string
}

// Validate checks the request before any state is touched
func (r TradeRequest) Validate() error {
	if err := domain.RequireNonEmpty("user_id", r.UserID); err != nil {
		return err
	}
	if err := domain.RequireNonEmpty("symbol", strings.TrimSpace(r.Symbol)); err != nil {
		return err
	}
	if r.TradeType != domain.TradeTypeBuy && r.TradeType != domain.TradeTypeSell {
		return domain.NewValidationError("trade_type", fmt.Sprintf("unknown trade type %q", r.TradeType))
	}
	if !r.AssetType.IsValid() {
		return domain.NewValidationError("asset_type", fmt.Sprintf("unknown asset type %q", r.AssetType))
	}
	if r.AssetType == domain.AssetTypeCash {
		return domain.NewValidationError("asset_type", "cash is moved with deposits and withdrawals, not trades")
	}
	if err := domain.RequirePositive("quantity", r.Quantity); err != nil {
		return err
	}
	return domain.RequirePositive("price_per_unit", r.PricePerUnit)
}

// Config controls settlement policy
type Config struct {
	// AllowTradeDelete enables record-only trade deletion. Deleting a trade never
	// reverses its holding or cash effect.
	AllowTradeDelete bool
}

// TradeResult is a settled trade and the recomputed portfolio
type TradeResult struct {
	Trade     domain.Trade     `json:"trade"`
	Portfolio domain.Portfolio `json:"portfolio"`
}

// SettlementService applies trades to holdings and cash atomically
type SettlementService struct {
	coordinator *ledger.Coordinator
	trades      *TradeRepository
	portfolios  *portfolio.Repository
	holdings    *holdings.Repository
	valuation   *portfolio.Valuation
	audit       domain.AuditSink
	events      *events.Manager
	metrics     *metrics.Metrics
	cfg         Config
	log         zerolog.Logger
}

// NewSettlementService creates a new trade settlement service.
// audit, eventManager and m may be nil.
func NewSettlementService(
	coordinator *ledger.Coordinator,
	trades *TradeRepository,
	portfolios *portfolio.Repository,
	holdingRepo *holdings.Repository,
	valuation *portfolio.Valuation,
	audit domain.AuditSink,
	eventManager *events.Manager,
	m *metrics.Metrics,
	cfg Config,
	log zerolog.Logger,
) *SettlementService {
	if audit == nil {
		audit = domain.NoopAuditSink{}
	}
	return &SettlementService{
		coordinator: coordinator,
		trades:      trades,
		portfolios:  portfolios,
		holdings:    holdingRepo,
		valuation:   valuation,
		audit:       audit,
		events:      eventManager,
		metrics:     m,
		cfg:         cfg,
		log:         log.With().Str("service", "trade_settlement").Logger(),
	}
}

// ExecuteTrade settles a BUY or SELL. Cash moves in the base currency.
// Either every effect (cash, asset holding, trade record, valuation) is applied or none is.
func (s *SettlementService) ExecuteTrade(ctx context.Context, req TradeRequest) (result *TradeResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSettlement("trade", err, time.Since(start)) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	total := req.Quantity.Mul(req.PricePerUnit)

	err = s.coordinator.Run(ctx, req.UserID, func(tx *sql.Tx) error {
		p, err := s.portfolios.GetOrCreate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		now := time.Now()
		switch req.TradeType {
		case domain.TradeTypeBuy:
			err = s.applyBuy(ctx, tx, p.ID, req, total, now)
		case domain.TradeTypeSell:
			err = s.applySell(ctx, tx, p.ID, req, total, now)
		}
		if err != nil {
			return err
		}

		trade := domain.Trade{
			UserID:       req.UserID,
			TradeType:    req.TradeType,
			AssetType:    req.AssetType,
			Symbol:       req.Symbol,
			Quantity:     req.Quantity,
			PricePerUnit: req.PricePerUnit,
			TotalValue:   total,
			ExecutedAt:   now,
			ExecutedBy:   req.ExecutedBy,
		}
		if err := s.trades.Create(ctx, tx, &trade); err != nil {
			return err
		}

		updated, err := s.valuation.Recompute(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		result = &TradeResult{Trade: trade, Portfolio: *updated}
		return nil
	})
	if err != nil {
		s.logFailure(err, req)
		return nil, err
	}

	s.log.Info().
		Str("trade_id", result.Trade.ID).
		Str("user_id", req.UserID).
		Str("trade_type", string(req.TradeType)).
		Str("symbol", req.Symbol).
		Str("quantity", req.Quantity.String()).
		Str("price_per_unit", req.PricePerUnit.String()).
		Str("total_value", total.String()).
		Msg("Trade settled")

	s.audit.Record(ctx, req.ExecutedBy, ActionTradeExecuted, auditTargetTrade, result.Trade.ID,
		fmt.Sprintf("%s %s %s at %s for user %s (total %s)",
			req.TradeType, req.Quantity.String(), req.Symbol,
			domain.FormatMoney(req.PricePerUnit, domain.BaseCurrency), req.UserID,
			domain.FormatMoney(total, domain.BaseCurrency)),
		map[string]interface{}{
			"user_id":        req.UserID,
			"trade_type":     string(req.TradeType),
			"asset_type":     string(req.AssetType),
			"symbol":         req.Symbol,
			"quantity":       req.Quantity.String(),
			"price_per_unit": req.PricePerUnit.String(),
			"total_value":    total.String(),
		})

	if s.events != nil {
		s.events.EmitTyped("trading", &events.TradeSettledData{
			TradeID:      result.Trade.ID,
			UserID:       req.UserID,
			TradeType:    string(req.TradeType),
			AssetType:    string(req.AssetType),
			Symbol:       req.Symbol,
			Quantity:     req.Quantity.String(),
			PricePerUnit: req.PricePerUnit.String(),
			TotalValue:   total.String(),
		})
	}

	return result, nil
}

// applyBuy debits cash and adds to the asset holding at a weighted average cost
func (s *SettlementService) applyBuy(ctx context.Context, tx *sql.Tx, portfolioID string, req TradeRequest, total decimal.Decimal, now time.Time) error {
	cash, err := s.holdings.Get(ctx, tx, portfolioID, domain.BaseCurrency, domain.AssetTypeCash)
	if err != nil {
		return err
	}

	available := decimal.Zero
	if cash != nil {
		available = cash.Quantity
	}
	if available.LessThan(total) {
		return &domain.InsufficientFundsError{
			Currency:  domain.BaseCurrency,
			Available: available,
			Required:  total,
		}
	}

	cash.Quantity = cash.Quantity.Sub(total)
	cash.LastPriceUpdate = now
	if _, err := s.holdings.Apply(ctx, tx, cash); err != nil {
		return err
	}

	asset, err := s.holdings.Get(ctx, tx, portfolioID, req.Symbol, req.AssetType)
	if err != nil {
		return err
	}

	if asset == nil {
		name := req.Name
		if name == "" {
			name = req.Symbol
		}
		asset = &domain.Holding{
			PortfolioID:     portfolioID,
			Symbol:          req.Symbol,
			AssetType:       req.AssetType,
			Name:            name,
			Quantity:        req.Quantity,
			AverageBuyPrice: req.PricePerUnit,
			CostBasis:       total,
		}
	} else {
		// Average from the exact running cost, not the rounded stored average.
		newQty := asset.Quantity.Add(req.Quantity)
		asset.CostBasis = asset.BookCost().Add(total)
		asset.AverageBuyPrice = asset.CostBasis.Div(newQty)
		asset.Quantity = newQty
	}
	asset.CurrentPrice = req.PricePerUnit
	asset.LastPriceUpdate = now

	_, err = s.holdings.Apply(ctx, tx, asset)
	return err
}

// applySell credits cash and reduces the asset holding. Average cost is never changed;
// a holding sold down to zero is deleted.
func (s *SettlementService) applySell(ctx context.Context, tx *sql.Tx, portfolioID string, req TradeRequest, total decimal.Decimal, now time.Time) error {
	asset, err := s.holdings.Get(ctx, tx, portfolioID, req.Symbol, req.AssetType)
	if err != nil {
		return err
	}
	if asset == nil || asset.Quantity.LessThan(req.Quantity) {
		available := decimal.Zero
		if asset != nil {
			available = asset.Quantity
		}
		return &domain.InsufficientPositionError{
			Symbol:    req.Symbol,
			AssetType: req.AssetType,
			Available: available,
			Required:  req.Quantity,
		}
	}

	cash, err := s.holdings.Get(ctx, tx, portfolioID, domain.BaseCurrency, domain.AssetTypeCash)
	if err != nil {
		return err
	}
	if cash == nil {
		cash = domain.NewCashHolding(portfolioID, domain.BaseCurrency, total, now)
	} else {
		cash.Quantity = cash.Quantity.Add(total)
		cash.LastPriceUpdate = now
	}
	if _, err := s.holdings.Apply(ctx, tx, cash); err != nil {
		return err
	}

	remaining := asset.Quantity.Sub(req.Quantity)
	if remaining.IsPositive() {
		asset.CostBasis = asset.BookCost().Mul(remaining).Div(asset.Quantity)
	}
	asset.Quantity = remaining
	asset.CurrentPrice = req.PricePerUnit
	asset.LastPriceUpdate = now
	_, err = s.holdings.Apply(ctx, tx, asset)
	return err
}

// DeleteTrade purges a trade record without reversing its ledger effect.
// Refused unless record-only deletion is enabled.
func (s *SettlementService) DeleteTrade(ctx context.Context, tradeID, actorID string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSettlement("trade_delete", err, time.Since(start)) }()

	if !s.cfg.AllowTradeDelete {
		return domain.ErrTradeDeleteForbidden
	}

	trade, err := s.trades.GetByID(ctx, s.coordinator.DB(), tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return domain.NotFoundError("trade", tradeID)
	}

	err = s.coordinator.Run(ctx, trade.UserID, func(tx *sql.Tx) error {
		return s.trades.Delete(ctx, tx, tradeID)
	})
	if err != nil {
		return err
	}

	s.log.Warn().
		Str("trade_id", tradeID).
		Str("user_id", trade.UserID).
		Str("actor_id", actorID).
		Msg("Trade record deleted without ledger reversal")

	s.audit.Record(ctx, actorID, ActionTradeDeleted, auditTargetTrade, tradeID,
		fmt.Sprintf("Deleted %s trade of %s %s for user %s (holdings not reversed)",
			trade.TradeType, trade.Quantity.String(), trade.Symbol, trade.UserID),
		map[string]interface{}{
			"user_id":         trade.UserID,
			"symbol":          trade.Symbol,
			"trade_type":      string(trade.TradeType),
			"quantity":        trade.Quantity.String(),
			"price_per_unit":  trade.PricePerUnit.String(),
			"ledger_reversed": false,
		})

	if s.events != nil {
		s.events.EmitTyped("trading", &events.TradeDeletedData{
			TradeID: tradeID,
			UserID:  trade.UserID,
		})
	}

	return nil
}

// ListTrades returns a user's trades in execution order
func (s *SettlementService) ListTrades(ctx context.Context, userID string) ([]domain.Trade, error) {
	trades, err := s.trades.ListByUser(ctx, s.coordinator.DB(), userID)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

// GetTrade returns a trade by ID
func (s *SettlementService) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	trade, err := s.trades.GetByID(ctx, s.coordinator.DB(), tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, domain.NotFoundError("trade", tradeID)
	}
	return trade, nil
}

func (s *SettlementService) logFailure(err error, req TradeRequest) {
	event := s.log.Error()
	if metrics.Outcome(err) == metrics.OutcomeRejected {
		event = s.log.Warn()
	}
	event.
		Err(err).
		Str("user_id", req.UserID).
		Str("trade_type", string(req.TradeType)).
		Str("symbol", req.Symbol).
		Str("quantity", req.Quantity.String()).
		Msg("Trade rejected")
}
