package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/model"
)

// PaperClient simulates an exchange for SIMULATION trade mode: orders fill
// immediately at the live feed price, history is kept in memory.
type PaperClient struct {
	mu     sync.Mutex
	prices PriceFeed
	fills  []Fill
	seq    int64
}

func NewPaperClient(prices PriceFeed) *PaperClient {
	return &PaperClient{prices: prices}
}

func (c *PaperClient) FetchFills(_ context.Context, symbol string, from, to time.Time) ([]Fill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Fill
	for _, fill := range c.fills {
		if symbol != "" && fill.Symbol != symbol {
			continue
		}
		if fill.Time.Before(from) || fill.Time.After(to) {
			continue
		}
		out = append(out, fill)
	}
	return out, nil
}

func (c *PaperClient) PlaceOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientOrderID string) (*Fill, error) {
	if side != model.SideBuy && side != model.SideSell {
		return nil, fmt.Errorf("unsupported side %q", side)
	}

	price, err := c.prices.Price(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	fill := Fill{
		ExchangeOrderID:    fmt.Sprintf("paper-%d", c.seq),
		Symbol:             symbol,
		Side:               side,
		ExecutedQty:        qty,
		AvgPrice:           price,
		CumulativeQuoteQty: price.Mul(qty),
		Status:             "FILLED",
		Time:               time.Now().UTC(),
	}
	c.fills = append(c.fills, fill)

	logger.WithFields(map[string]interface{}{
		"connector": "PaperClient",
		"symbol":    symbol,
		"side":      side,
		"qty":       qty,
		"price":     price,
	}).Info("paper order filled")

	return &fill, nil
}

func (c *PaperClient) GetOpenOrders(context.Context, string) ([]OpenOrder, error) {
	// Paper orders fill instantly; nothing ever rests on the book.
	return nil, nil
}
