package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one exchange fill as reported by the exchange's order history. It is
// the raw input of the execution linker.
type Fill struct {
	ExchangeOrderID    string
	Symbol             string
	Side               string
	ExecutedQty        decimal.Decimal
	AvgPrice           decimal.Decimal
	CumulativeQuoteQty decimal.Decimal
	FeeAmount          decimal.Decimal
	FeeCurrency        string
	Status             string
	Time               time.Time
}

// OpenOrder is an order resting on the exchange book.
type OpenOrder struct {
	ExchangeOrderID string
	Symbol          string
	Side            string
	Qty             decimal.Decimal
	Price           decimal.Decimal
	CreatedAt       time.Time
}

// ExchangeClient is the capability the engine needs from an exchange: fetch
// fill history, place market orders, list open orders. Implementations must
// not retry forever; exhausted retries surface as model.ErrExchangeUnavailable.
type ExchangeClient interface {
	FetchFills(ctx context.Context, symbol string, from, to time.Time) ([]Fill, error)
	PlaceOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientOrderID string) (*Fill, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
}

// ClientProvider resolves the exchange client for an account id. REAL accounts
// get the signed REST client, SIMULATION accounts the paper client.
type ClientProvider interface {
	ClientForAccount(accountID uint) (ExchangeClient, error)
}

// StaticClientProvider is a fixed account-to-client map.
type StaticClientProvider map[uint]ExchangeClient

func (p StaticClientProvider) ClientForAccount(accountID uint) (ExchangeClient, error) {
	client, ok := p[accountID]
	if !ok {
		return nil, fmt.Errorf("exchange client for account %d not found", accountID)
	}
	return client, nil
}
