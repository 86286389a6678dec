package engine

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RiskTickSec         int `envconfig:"RISK_TICK_SEC" default:"5"`
	ConfirmTickSec      int `envconfig:"CONFIRM_TICK_SEC" default:"5"`
	FillPollSec         int `envconfig:"FILL_POLL_SEC" default:"60"`
	FillPollLookbackMin int `envconfig:"FILL_POLL_LOOKBACK_MIN" default:"10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
