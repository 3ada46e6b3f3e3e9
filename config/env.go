package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/rebalancer/engine"
)

// ApplyEnv overlays environment variables onto c. Unset or empty
// variables leave the current value alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", engine.ErrConfiguration, key, v)
		}
		*dst = f
		return nil
	}
	integer := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", engine.ErrConfiguration, key, v)
		}
		*dst = n
		return nil
	}

	str("ACCOUNT_ID", &c.Account.ID)
	str("TRADING_MODE", &c.Account.Mode)
	c.Account.Mode = strings.ToLower(c.Account.Mode)
	str("ALPACA_API_KEY", &c.Alpaca.APIKey)
	str("ALPACA_API_SECRET", &c.Alpaca.APISecret)
	str("ALPACA_BASE_URL", &c.Alpaca.BaseURL)
	str("INVOKE_SECRET", &c.Server.InvokeSecret)
	str("START_DATE", &c.Signal.StartDate)
	str("STATE_DB", &c.State.DSN)
	str("LOG_LEVEL", &c.Log.Level)

	if v := strings.TrimSpace(getenv("TICKERS")); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				tickers = append(tickers, t)
			}
		}
		c.Signal.Tickers = tickers
	}

	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"MAX_DAILY_LOSS", &c.Risk.MaxDailyLoss},
		{"RISK_PER_TRADE", &c.Risk.RiskPerTrade},
		{"MAX_POSITION_PCT", &c.Risk.MaxPositionPct},
		{"MAX_TOTAL_EXPOSURE", &c.Risk.MaxTotalExposure},
		{"SIM_CASH", &c.Account.SimCash},
	} {
		if err := float(f.key, f.dst); err != nil {
			return err
		}
	}
	if err := integer("MAX_DAILY_TRADES", &c.Risk.MaxDailyTrades); err != nil {
		return err
	}
	if err := integer("PORT", &c.Server.Port); err != nil {
		return err
	}
	return nil
}
