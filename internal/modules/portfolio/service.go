package portfolio

import (
	"context"
	"database/sql"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/rs/zerolog"
)

// View is a portfolio with its current holdings
type View struct {
	Portfolio domain.Portfolio `json:"portfolio"`
	Holdings  []domain.Holding `json:"holdings"`
}

// RefreshResult summarizes a price refresh
type RefreshResult struct {
	Portfolio   *domain.Portfolio `json:"portfolio"`
	Unavailable []string          `json:"unavailable,omitempty"`
	Updated     int               `json:"updated"`
	Stale       int               `json:"stale"`
}

// Service serves portfolio reads, recomputation and price refreshes
type Service struct {
	coordinator *ledger.Coordinator
	portfolios  *Repository
	holdings    *holdings.Repository
	valuation   *Valuation
	prices      domain.PriceSource
	events      *events.Manager
	log         zerolog.Logger
}

// NewService creates a new portfolio service. prices and eventManager may be nil.
func NewService(
	coordinator *ledger.Coordinator,
	portfolios *Repository,
	holdingRepo *holdings.Repository,
	valuation *Valuation,
	prices domain.PriceSource,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		coordinator: coordinator,
		portfolios:  portfolios,
		holdings:    holdingRepo,
		valuation:   valuation,
		prices:      prices,
		events:      eventManager,
		log:         log.With().Str("service", "portfolio").Logger(),
	}
}

// GetPortfolio returns the user's portfolio and holdings
func (s *Service) GetPortfolio(ctx context.Context, userID string) (*View, error) {
	db := s.coordinator.DB()

	p, err := s.portfolios.GetByUser(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NotFoundError("portfolio for user", userID)
	}

	hs, err := s.holdings.ListByPortfolio(ctx, db, p.ID)
	if err != nil {
		return nil, err
	}
	if hs == nil {
		hs = []domain.Holding{}
	}

	return &View{Portfolio: *p, Holdings: hs}, nil
}

// ListUserIDs returns every user that owns a portfolio
func (s *Service) ListUserIDs(ctx context.Context) ([]string, error) {
	all, err := s.portfolios.ListAll(ctx, s.coordinator.DB())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

// RecomputeForUser recomputes the user's aggregates under the portfolio lock
func (s *Service) RecomputeForUser(ctx context.Context, userID string) (*domain.Portfolio, error) {
	var result *domain.Portfolio
	err := s.coordinator.Run(ctx, userID, func(tx *sql.Tx) error {
		p, err := s.portfolios.GetByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NotFoundError("portfolio for user", userID)
		}
		result, err = s.valuation.Recompute(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitRecomputed(result)
	return result, nil
}

// RefreshPrices asks the price source for every non-cash holding and revalues them.
// Quotes are fetched before taking the lock so network latency never holds a write
// transaction open. A failed lookup keeps the stored price.
func (s *Service) RefreshPrices(ctx context.Context, userID string) (*RefreshResult, error) {
	if s.prices == nil {
		return s.refreshWithoutSource(ctx, userID)
	}

	view, err := s.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{}
	quotes := make(map[holdingKey]domain.Quote)
	for _, h := range view.Holdings {
		if h.IsCash() {
			continue
		}
		q, err := s.prices.GetPrice(ctx, h.Symbol, h.AssetType)
		if err != nil || !q.Price.IsPositive() {
			s.log.Warn().
				Err(err).
				Str("user_id", userID).
				Str("symbol", h.Symbol).
				Msg("Price unavailable, keeping stored price")
			result.Unavailable = append(result.Unavailable, h.Symbol)
			continue
		}
		if q.Stale {
			result.Stale++
		}
		quotes[holdingKey{h.Symbol, h.AssetType}] = q
	}

	err = s.coordinator.Run(ctx, userID, func(tx *sql.Tx) error {
		result.Updated = 0
		current, err := s.holdings.ListByPortfolio(ctx, tx, view.Portfolio.ID)
		if err != nil {
			return err
		}
		for i := range current {
			h := &current[i]
			q, ok := quotes[holdingKey{h.Symbol, h.AssetType}]
			if !ok {
				continue
			}
			h.CurrentPrice = q.Price
			h.LastPriceUpdate = q.FetchedAt
			if h.LastPriceUpdate.IsZero() {
				h.LastPriceUpdate = time.Now()
			}
			h.Revalue()
			if err := s.holdings.Upsert(ctx, tx, h); err != nil {
				return err
			}
			result.Updated++
		}
		result.Portfolio, err = s.valuation.Recompute(ctx, tx, view.Portfolio.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID).
		Int("updated", result.Updated).
		Int("stale", result.Stale).
		Int("unavailable", len(result.Unavailable)).
		Msg("Prices refreshed")

	if s.events != nil {
		s.events.EmitTyped("portfolio", &events.PricesRefreshedData{
			UserID:  userID,
			Updated: result.Updated,
			Stale:   result.Stale,
		})
	}
	s.emitRecomputed(result.Portfolio)

	return result, nil
}

func (s *Service) refreshWithoutSource(ctx context.Context, userID string) (*RefreshResult, error) {
	p, err := s.RecomputeForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{Portfolio: p}, nil
}

func (s *Service) emitRecomputed(p *domain.Portfolio) {
	if s.events == nil || p == nil {
		return
	}
	s.events.EmitTyped("portfolio", &events.PortfolioRecomputedData{
		UserID:          p.UserID,
		PortfolioID:     p.ID,
		TotalValue:      p.TotalValue.String(),
		TotalProfitLoss: p.TotalProfitLoss.String(),
	})
}

type holdingKey struct {
	symbol    string
	assetType domain.AssetType
}
