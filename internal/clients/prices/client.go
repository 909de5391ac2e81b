// Package prices provides current market prices with cache-first, stale-on-failure behavior.
package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/ledger/internal/clientdata"
	"github.com/aristath/ledger/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrPriceNotFound is returned when the upstream has no quote for an instrument
var ErrPriceNotFound = errors.New("price not found")

// commoditySymbols maps commodity codes to their front-month futures tickers
var commoditySymbols = map[string]string{
	"XAU":    "GC=F",
	"GOLD":   "GC=F",
	"XAG":    "SI=F",
	"SILVER": "SI=F",
	"XPT":    "PL=F",
	"XPD":    "PA=F",
	"HG":     "HG=F",
	"WTI":    "CL=F",
	"OIL":    "CL=F",
	"BRENT":  "BZ=F",
	"NG":     "NG=F",
}

// Client fetches quotes from a Yahoo Finance v8 chart compatible endpoint
type Client struct {
	baseURL   string
	client    *http.Client
	ttl       time.Duration
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewClient creates a new price client.
// cacheRepo is optional - if nil, caching and stale fallback are disabled.
func NewClient(baseURL string, ttl time.Duration, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if ttl <= 0 {
		ttl = clientdata.TTLCurrentPrice
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		ttl:       ttl,
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "prices").Logger(),
	}
}

// QuoteSymbol converts a ledger symbol to the upstream ticker
func QuoteSymbol(symbol string, assetType domain.AssetType) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	switch assetType {
	case domain.AssetTypeCrypto:
		if strings.Contains(symbol, "-") {
			return symbol
		}
		return symbol + "-" + domain.BaseCurrency
	case domain.AssetTypeCommodity:
		if ticker, ok := commoditySymbols[symbol]; ok {
			return ticker
		}
	}
	return symbol
}

// GetPrice implements domain.PriceSource.
// Fresh cache first, then upstream; if upstream fails the last cached quote is returned with Stale set.
func (c *Client) GetPrice(ctx context.Context, symbol string, assetType domain.AssetType) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Quote{}, domain.NewValidationError("symbol", "is required")
	}
	if assetType == domain.AssetTypeCash {
		return domain.Quote{Symbol: symbol, Price: decimal.NewFromInt(1), FetchedAt: time.Now()}, nil
	}

	cacheKey := string(assetType) + ":" + symbol

	if quote, ok := c.fromCache(ctx, cacheKey, true); ok {
		c.log.Debug().Str("symbol", symbol).Str("price", quote.Price.String()).Msg("Cache hit")
		return quote, nil
	}

	quote, err := c.fetch(ctx, symbol, QuoteSymbol(symbol, assetType))
	if err != nil {
		if stale, ok := c.fromCache(ctx, cacheKey, false); ok {
			stale.Stale = true
			c.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("price", stale.Price.String()).
				Time("fetched_at", stale.FetchedAt).
				Msg("Price API failed, using stale cached price")
			return stale, nil
		}
		return domain.Quote{}, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(ctx, clientdata.TableCurrentPrices, cacheKey, quote, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache price")
		}
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("price", quote.Price.String()).
		Str("change_percent", quote.ChangePercent.String()).
		Msg("Fetched price")

	return quote, nil
}

// chartResponse is the subset of the v8 chart payload we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice decimal.Decimal `json:"regularMarketPrice"`
				ChartPreviousClose decimal.Decimal `json:"chartPreviousClose"`
				RegularMarketTime  int64           `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) fetch(ctx context.Context, symbol, ticker string) (domain.Quote, error) {
	endpoint := fmt.Sprintf("%s/%s?interval=1d&range=1d", c.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("User-Agent", "ledger/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrPriceNotFound, ticker)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse price response: %w", err)
	}
	if body.Chart.Error != nil || len(body.Chart.Result) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrPriceNotFound, ticker)
	}

	meta := body.Chart.Result[0].Meta
	if !meta.RegularMarketPrice.IsPositive() {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrPriceNotFound, ticker)
	}

	quote := domain.Quote{
		Symbol:    symbol,
		Price:     meta.RegularMarketPrice,
		FetchedAt: time.Now(),
	}
	if meta.ChartPreviousClose.IsPositive() {
		quote.ChangePercent = meta.RegularMarketPrice.Sub(meta.ChartPreviousClose).
			Div(meta.ChartPreviousClose).
			Mul(decimal.NewFromInt(100)).
			Round(4)
	}
	return quote, nil
}

func (c *Client) fromCache(ctx context.Context, key string, freshOnly bool) (domain.Quote, bool) {
	if c.cacheRepo == nil {
		return domain.Quote{}, false
	}

	var (
		data json.RawMessage
		err  error
	)
	if freshOnly {
		data, err = c.cacheRepo.GetIfFresh(ctx, clientdata.TableCurrentPrices, key)
	} else {
		data, err = c.cacheRepo.Get(ctx, clientdata.TableCurrentPrices, key)
	}
	if err != nil || data == nil {
		return domain.Quote{}, false
	}

	var quote domain.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return domain.Quote{}, false
	}
	return quote, true
}
