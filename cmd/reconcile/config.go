package reconcile

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AccountID   uint   `envconfig:"ACCOUNT_ID" default:"1"`
	Symbol      string `envconfig:"SYMBOL" default:"BTCUSDT"`
	WindowHours int    `envconfig:"WINDOW_HOURS" default:"24"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
