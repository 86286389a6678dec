package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
)

// PriceFeed supplies the current market price per symbol. Both engines (risk
// exits, signal confirmation) read from it on every tick.
type PriceFeed interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BinancePriceFeed reads spot tickers from Binance through goex. Symbols are
// expected in concatenated form (e.g. BTCUSDT) with the configured quote
// currency as suffix.
type BinancePriceFeed struct {
	exchange goex.API
	quote    string
}

func NewBinancePriceFeed() *BinancePriceFeed {
	config := GetConfig()
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &BinancePriceFeed{
		exchange: binance.NewWithConfig(apiConfig),
		quote:    config.QuoteCurrency,
	}
}

func (f *BinancePriceFeed) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	base := strings.TrimSuffix(symbol, f.quote)
	if base == symbol || base == "" {
		return decimal.Zero, fmt.Errorf("symbol %s does not end with quote currency %s", symbol, f.quote)
	}

	pair := goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: f.quote})
	ticker, err := f.exchange.GetTicker(pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}

	return decimal.NewFromFloat(ticker.Last), nil
}

// StaticPriceFeed serves fixed prices. Used by the paper client and in tests.
type StaticPriceFeed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticPriceFeed() *StaticPriceFeed {
	return &StaticPriceFeed{prices: map[string]decimal.Decimal{}}
}

func (f *StaticPriceFeed) Set(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *StaticPriceFeed) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for symbol %s", symbol)
	}
	return price, nil
}
