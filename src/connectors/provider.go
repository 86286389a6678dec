package connectors

import (
	"context"
	"fmt"
	"sync"

	"tradecore/src/model"
	"tradecore/src/security"
)

type accountSource interface {
	FindByID(ctx context.Context, id uint) (*model.ExchangeAccount, error)
}

// AccountClientProvider builds exchange clients from persisted accounts:
// the signed REST client for REAL accounts (credentials decrypted on first
// use), the paper client for SIMULATION accounts. Clients are cached per
// account id.
type AccountClientProvider struct {
	mu       sync.Mutex
	accounts accountSource
	feed     PriceFeed
	clients  map[uint]ExchangeClient
}

func NewAccountClientProvider(accounts accountSource, feed PriceFeed) *AccountClientProvider {
	return &AccountClientProvider{
		accounts: accounts,
		feed:     feed,
		clients:  map[uint]ExchangeClient{},
	}
}

func (p *AccountClientProvider) ClientForAccount(accountID uint) (ExchangeClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[accountID]; ok {
		return client, nil
	}

	account, err := p.accounts.FindByID(context.Background(), accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("exchange account %d not found", accountID)
	}

	var client ExchangeClient
	switch account.TradeMode {
	case model.TradeModeSimulation:
		client = NewPaperClient(p.feed)

	case model.TradeModeReal:
		apiKey, err := security.DecryptString(account.APIKeyHash)
		if err != nil {
			return nil, fmt.Errorf("account %d: decrypt api key: %w", accountID, err)
		}
		apiSecret, err := security.DecryptString(account.APISecretHash)
		if err != nil {
			return nil, fmt.Errorf("account %d: decrypt api secret: %w", accountID, err)
		}
		client = NewRESTClient(apiKey, apiSecret, "")

	default:
		return nil, fmt.Errorf("account %d: unknown trade mode %q", accountID, account.TradeMode)
	}

	p.clients[accountID] = client
	return client, nil
}
