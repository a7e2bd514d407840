package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
)

// DefaultBinanceBaseURL is the Binance USDⓈ-M futures REST endpoint.
const DefaultBinanceBaseURL = "https://fapi.binance.com"

// binanceMaxKlineLimit is the per-request kline cap enforced by the API.
const binanceMaxKlineLimit = 1500

// Binance fetches market data from the Binance futures REST API. All market
// data endpoints used here are public and need no signing.
type Binance struct {
	baseURL string
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewBinance creates a Binance adapter. baseURL may be empty to use the
// production endpoint.
func NewBinance(baseURL string, logger *zap.SugaredLogger) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceBaseURL
	}
	return &Binance{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// GetKlines returns the most recent limit klines, oldest first.
func (b *Binance) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	body, err := b.get(ctx, "/fapi/v1/klines", q)
	if err != nil {
		return nil, err
	}
	return parseKlines(body)
}

// GetHistoricalKlines pages through [startMs, endMs), oldest first.
func (b *Binance) GetHistoricalKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error) {
	step, err := domain.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	stepMs := step.Milliseconds()

	var out []domain.Kline
	cursor := startMs
	for cursor < endMs {
		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("interval", interval)
		q.Set("startTime", strconv.FormatInt(cursor, 10))
		q.Set("endTime", strconv.FormatInt(endMs-1, 10))
		q.Set("limit", strconv.Itoa(binanceMaxKlineLimit))

		body, err := b.get(ctx, "/fapi/v1/klines", q)
		if err != nil {
			return nil, err
		}
		page, err := parseKlines(body)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, k := range page {
			if k.OpenTime >= startMs && k.OpenTime < endMs {
				out = append(out, k)
			}
		}
		next := page[len(page)-1].OpenTime + stepMs
		if next <= cursor {
			break
		}
		cursor = next
	}
	return out, nil
}

// GetFundingRate returns the most recent funding rate for symbol.
func (b *Binance) GetFundingRate(ctx context.Context, symbol string) (FundingRate, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", "1")

	body, err := b.get(ctx, "/fapi/v1/fundingRate", q)
	if err != nil {
		return FundingRate{}, err
	}

	var rows []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		FundingTime int64  `json:"fundingTime"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return FundingRate{}, fmt.Errorf("%w: funding rate: %v", ErrBadResponse, err)
	}
	if len(rows) == 0 {
		return FundingRate{}, ErrNoData
	}

	rate, err := strconv.ParseFloat(rows[0].FundingRate, 64)
	if err != nil {
		return FundingRate{}, fmt.Errorf("%w: funding rate %q", ErrBadResponse, rows[0].FundingRate)
	}
	return FundingRate{Symbol: rows[0].Symbol, Rate: rate, FundingTime: rows[0].FundingTime}, nil
}

// GetOpenInterest returns open-interest history, oldest first.
func (b *Binance) GetOpenInterest(ctx context.Context, symbol, interval string, limit int) ([]OpenInterest, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("period", interval)
	q.Set("limit", strconv.Itoa(limit))

	body, err := b.get(ctx, "/futures/data/openInterestHist", q)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Symbol               string `json:"symbol"`
		SumOpenInterest      string `json:"sumOpenInterest"`
		SumOpenInterestValue string `json:"sumOpenInterestValue"`
		Timestamp            int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: open interest: %v", ErrBadResponse, err)
	}

	out := make([]OpenInterest, 0, len(rows))
	for _, r := range rows {
		sum, err := strconv.ParseFloat(r.SumOpenInterest, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: open interest sum %q", ErrBadResponse, r.SumOpenInterest)
		}
		val, err := strconv.ParseFloat(r.SumOpenInterestValue, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: open interest value %q", ErrBadResponse, r.SumOpenInterestValue)
		}
		out = append(out, OpenInterest{Symbol: r.Symbol, Sum: sum, SumValue: val, Timestamp: r.Timestamp})
	}
	return out, nil
}

func (b *Binance) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := b.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		if b.logger != nil {
			b.logger.Warnw("exchange request failed",
				"path", path, "status", resp.StatusCode, "body", truncate(string(body), 200))
		}
		return nil, fmt.Errorf("request %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

// parseKlines decodes the Binance kline array-of-arrays format:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(body []byte) ([]domain.Kline, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: klines: %v", ErrBadResponse, err)
	}

	out := make([]domain.Kline, 0, len(raw))
	for i, row := range raw {
		if len(row) < 7 {
			return nil, fmt.Errorf("%w: kline row %d has %d fields", ErrBadResponse, i, len(row))
		}
		var k domain.Kline
		var err error
		if err = json.Unmarshal(row[0], &k.OpenTime); err != nil {
			return nil, fmt.Errorf("%w: kline row %d open time", ErrBadResponse, i)
		}
		if err = json.Unmarshal(row[6], &k.CloseTime); err != nil {
			return nil, fmt.Errorf("%w: kline row %d close time", ErrBadResponse, i)
		}
		fields := []struct {
			raw json.RawMessage
			dst *float64
		}{
			{row[1], &k.Open},
			{row[2], &k.High},
			{row[3], &k.Low},
			{row[4], &k.Close},
			{row[5], &k.Volume},
		}
		for _, f := range fields {
			var s string
			if err = json.Unmarshal(f.raw, &s); err != nil {
				return nil, fmt.Errorf("%w: kline row %d price field", ErrBadResponse, i)
			}
			if *f.dst, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%w: kline row %d value %q", ErrBadResponse, i, s)
			}
		}
		out = append(out, k)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Exchange = (*Binance)(nil)
