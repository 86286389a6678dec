package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL       string `envconfig:"EXCHANGE_BASE_URL" default:"https://testnet.exchange.local"`
	QuoteCurrency string `envconfig:"QUOTE_CURRENCY" default:"USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
