// Package market provides exchange access: REST kline/funding/open-interest
// fetching, a websocket kline stream, indicator computation, and the
// multi-timeframe snapshot builder fed to the decision source.
package market

import (
	"context"
	"errors"

	"perp-trading-lab/internal/domain"
)

// Exchange errors.
var (
	// ErrNoData is returned when the exchange has no klines for the request.
	ErrNoData = errors.New("no kline data returned")

	// ErrBadResponse is returned for responses that cannot be decoded.
	ErrBadResponse = errors.New("malformed exchange response")
)

// FundingRate is one perpetual funding observation.
type FundingRate struct {
	Symbol      string
	Rate        float64
	FundingTime int64 // ms
}

// OpenInterest is one open-interest history point.
type OpenInterest struct {
	Symbol    string
	Sum       float64
	SumValue  float64
	Timestamp int64 // ms
}

// Exchange is the capability surface the rest of the system sees. Live runs
// use the Binance adapter; replay runs use the cache-backed historical
// adapter behind the same interface.
type Exchange interface {
	// GetKlines returns the most recent limit klines for symbol/interval,
	// oldest first. The final kline may still be forming.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)

	// GetHistoricalKlines returns klines whose open time falls in
	// [startMs, endMs), oldest first, paging through the exchange limit as
	// needed.
	GetHistoricalKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error)

	// GetFundingRate returns the latest funding rate for symbol.
	GetFundingRate(ctx context.Context, symbol string) (FundingRate, error)

	// GetOpenInterest returns recent open-interest history for symbol.
	GetOpenInterest(ctx context.Context, symbol, interval string, limit int) ([]OpenInterest, error)
}
