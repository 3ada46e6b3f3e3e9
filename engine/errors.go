package engine

import (
	"errors"

	"github.com/rustyeddy/rebalancer/broker"
	"github.com/rustyeddy/rebalancer/market"
)

var (
	// ErrDataUnavailable means required market or account data is missing.
	ErrDataUnavailable = market.ErrDataUnavailable
	// ErrInvalidEquity aborts a run when the account reports equity <= 0.
	ErrInvalidEquity = errors.New("invalid equity state")
	// ErrBrokerRejection matches any order the brokerage refused.
	ErrBrokerRejection = broker.ErrRejected
	// ErrConfiguration means the limits or options are unusable.
	ErrConfiguration = errors.New("configuration error")
)
