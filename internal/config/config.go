package config

import (
	"fmt"
	"os"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

const _investAppNameDefault = "investracker"

// LoadInvestConfig reads the T-Invest SDK config. T_INVEST_CONFIG overrides
// filename; the token and an optional account come from the environment.
func LoadInvestConfig(filename string) (investgo.Config, error) {
	if path := os.Getenv("T_INVEST_CONFIG"); path != "" {
		filename = path
	}

	cfg, err := investgo.LoadConfig(filename)
	if err != nil {
		return investgo.Config{}, fmt.Errorf("%w: can't load invest config %s", err, filename)
	}

	cfg.Token = os.Getenv("T_INVEST_API_TOKEN")
	if cfg.Token == "" {
		return investgo.Config{}, fmt.Errorf("empty t-invest api token")
	}
	if account := os.Getenv("T_INVEST_ACCOUNT_ID"); account != "" {
		cfg.AccountId = account
	}
	if cfg.AppName == "" {
		cfg.AppName = _investAppNameDefault
	}

	return cfg, nil
}
