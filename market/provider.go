package market

import (
	"context"
	"time"
)

// PriceSource returns the latest tradable price for a symbol.
// It returns an error wrapping ErrDataUnavailable when no price exists.
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// Provider is the market data collaborator.
//
// GetHistory returns daily bars in [start, end]; a zero end means "up to
// now".
type Provider interface {
	PriceSource
	GetHistory(ctx context.Context, symbol string, start, end time.Time) (Series, error)
}
