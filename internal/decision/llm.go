package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/risk"
)

// promptBars is how many tail bars per timeframe go into the prompt. The
// model sees enough context to judge structure without blowing the token
// budget.
const promptBars = 20

const systemPrompt = `You are a disciplined perpetual futures trading analyst managing a simulated account. You receive multi-timeframe market data with indicators and the current portfolio state.

Respond with exactly one JSON object and nothing else:
{"symbol":"...","signal":"entry|hold|close","side":"long|short","quantity":0.0,"leverage":1,"stop_loss":0.0,"take_profit":0.0,"confidence":0,"risk_usd":0.0,"invalidation":"...","justification":"..."}

Rules:
- "entry" requires side, quantity, leverage, and stop_loss. Stop must bracket entry against the side; take_profit is optional (0 = none).
- "close" fully closes the open position; "hold" does nothing.
- Never propose an entry for a symbol that already has an open position.
- confidence is 0-100. risk_usd is the loss if the stop is hit.`

// LLMConfig configures the chat-completions decision source.
type LLMConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// LLM asks an OpenAI-compatible chat endpoint for one decision per snapshot.
type LLM struct {
	config LLMConfig
	client *http.Client
	logger *zap.SugaredLogger
}

// NewLLM creates the chat-completions decision source.
func NewLLM(config LLMConfig, logger *zap.SugaredLogger) *LLM {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &LLM{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Decide builds the prompt, calls the model, and strictly parses the reply.
func (l *LLM) Decide(ctx context.Context, snap *domain.Snapshot, portfolio *domain.Portfolio) (*domain.Decision, error) {
	userPrompt, err := buildPrompt(snap, portfolio)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	reqBody := map[string]any{
		"model":       l.config.Model,
		"temperature": l.config.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.config.APIKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read decision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("decision request: status %d", resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("%w: completion envelope: %v", ErrMalformed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformed)
	}

	d, err := Parse(completion.Choices[0].Message.Content, snap.Symbol)
	if err != nil {
		if l.logger != nil {
			l.logger.Warnw("rejecting model decision",
				"symbol", snap.Symbol, "error", err)
		}
		return nil, err
	}
	return d, nil
}

// promptBar is the compact per-bar representation sent to the model.
type promptBar struct {
	Time       string  `json:"t"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
	EMA20      float64 `json:"ema20"`
	EMA50      float64 `json:"ema50"`
	RSI14      float64 `json:"rsi14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	ATR14      float64 `json:"atr14"`
}

type promptView struct {
	Interval  string      `json:"interval"`
	SwingHigh float64     `json:"swing_high"`
	SwingLow  float64     `json:"swing_low"`
	Bars      []promptBar `json:"bars"`
}

type promptPosition struct {
	Side          domain.Side `json:"side"`
	EntryPrice    float64     `json:"entry_price"`
	Quantity      float64     `json:"quantity"`
	Leverage      int         `json:"leverage"`
	StopLoss      float64     `json:"stop_loss"`
	TakeProfit    float64     `json:"take_profit,omitempty"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	Invalidation  string      `json:"invalidation,omitempty"`
}

func buildPrompt(snap *domain.Snapshot, portfolio *domain.Portfolio) (string, error) {
	doc := map[string]any{
		"symbol":        snap.Symbol,
		"timestamp":     snap.Timestamp.UTC().Format(time.RFC3339),
		"price":         snap.Price,
		"funding_rate":  snap.FundingRate,
		"open_interest": snap.OpenInterest,
		"timeframes": []promptView{
			tailView(&snap.Execution),
			tailView(&snap.Structure),
			tailView(&snap.Trend),
		},
		"account": map[string]any{
			"balance":      portfolio.Balance,
			"free_balance": portfolio.FreeBalance(),
			"realized_pnl": portfolio.RealizedPnL,
		},
	}

	if pos, ok := portfolio.Positions[snap.Symbol]; ok {
		doc["open_position"] = promptPosition{
			Side:          pos.Side,
			EntryPrice:    pos.EntryPrice,
			Quantity:      pos.Quantity,
			Leverage:      pos.Leverage,
			StopLoss:      pos.StopLoss,
			TakeProfit:    pos.TakeProfit,
			UnrealizedPnL: risk.UnrealizedPnL(pos, snap.Price),
			Invalidation:  pos.Invalidation,
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func tailView(v *domain.TimeframeView) promptView {
	bars := v.Bars
	if len(bars) > promptBars {
		bars = bars[len(bars)-promptBars:]
	}
	pv := promptView{
		Interval:  v.Interval,
		SwingHigh: v.SwingHigh,
		SwingLow:  v.SwingLow,
		Bars:      make([]promptBar, len(bars)),
	}
	for i, b := range bars {
		pv.Bars[i] = promptBar{
			Time:       time.UnixMilli(b.OpenTime).UTC().Format("2006-01-02T15:04"),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			EMA20:      b.EMA20,
			EMA50:      b.EMA50,
			RSI14:      b.RSI14,
			MACD:       b.MACD,
			MACDSignal: b.MACDSignal,
			ATR14:      b.ATR14,
		}
	}
	return pv
}

var _ Source = (*LLM)(nil)
