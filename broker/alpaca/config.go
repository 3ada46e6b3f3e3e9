package alpaca

import (
	"fmt"
	"strings"
)

const (
	PaperURL = "https://paper-api.alpaca.markets"
	LiveURL  = "https://api.alpaca.markets"
)

// Config holds credentials and the trading endpoint.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // overrides the mode default when set
	Mode      string // "paper" or "live"
}

// BaseURL resolves the trading endpoint for a mode.
func BaseURL(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "paper":
		return PaperURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown alpaca mode %q (want paper|live)", mode)
	}
}

func (c Config) endpoint() (string, error) {
	if c.BaseURL != "" {
		return c.BaseURL, nil
	}
	return BaseURL(c.Mode)
}

func (c Config) validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("alpaca api key and secret are required")
	}
	return nil
}
