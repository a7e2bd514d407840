// Package forward mirrors simulated order intents to an external execution
// endpoint. Forwarding is strictly best effort: a failure here never rolls
// back the already persisted simulated state, it is only logged.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
)

// OrderIntent is the open-side payload posted to the forwarding endpoint.
type OrderIntent struct {
	Symbol     string      `json:"symbol"`
	Side       domain.Side `json:"side"`
	Quantity   float64     `json:"quantity"`
	Leverage   int         `json:"leverage"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit,omitempty"`
}

// CloseIntent is the close-side payload.
type CloseIntent struct {
	Symbol string      `json:"symbol"`
	Side   domain.Side `json:"side"`
	Reason string      `json:"reason"`
}

// HTTP posts intents to a webhook-style endpoint.
type HTTP struct {
	endpoint string
	client   *http.Client
	logger   *zap.SugaredLogger
}

// NewHTTP creates a forwarder posting to endpoint.
func NewHTTP(endpoint string, logger *zap.SugaredLogger) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// ForwardOpen posts the order intent for a freshly opened position.
func (f *HTTP) ForwardOpen(ctx context.Context, p *domain.Position) error {
	return f.post(ctx, "/orders", OrderIntent{
		Symbol:     p.Symbol,
		Side:       p.Side,
		Quantity:   p.Quantity,
		Leverage:   p.Leverage,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
	})
}

// ForwardClose posts the close intent for a closed trade.
func (f *HTTP) ForwardClose(ctx context.Context, t *domain.TradeRecord) error {
	return f.post(ctx, "/closes", CloseIntent{
		Symbol: t.Symbol,
		Side:   t.Side,
		Reason: t.ExitReason,
	})
}

func (f *HTTP) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("forward intent: status %d", resp.StatusCode)
	}
	return nil
}
