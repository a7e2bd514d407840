// Package notify delivers trade event notifications. Delivery is best
// effort and always happens after the state transition has been persisted.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
)

// DefaultTelegramBaseURL is the Telegram Bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// Telegram sends trade notifications through the Bot API.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewTelegram creates a Telegram notifier. baseURL may be empty to use the
// production API.
func NewTelegram(baseURL, token, chatID string, logger *zap.SugaredLogger) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	return &Telegram{
		baseURL: baseURL,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// NotifyOpen announces a freshly opened position.
func (t *Telegram) NotifyOpen(ctx context.Context, p *domain.Position) {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Opened %s %s\n", strings.ToUpper(string(p.Side)), p.Symbol)
	fmt.Fprintf(&b, "Entry: %.2f  Qty: %.4f  Lev: %dx\n", p.EntryPrice, p.Quantity, p.Leverage)
	fmt.Fprintf(&b, "Stop: %.2f", p.StopLoss)
	if p.TakeProfit != 0 {
		fmt.Fprintf(&b, "  Target: %.2f", p.TakeProfit)
	}
	if p.Invalidation != "" {
		fmt.Fprintf(&b, "\nInvalidation: %s", p.Invalidation)
	}
	t.send(ctx, b.String())
}

// NotifyClose announces a closed trade.
func (t *Telegram) NotifyClose(ctx context.Context, rec *domain.TradeRecord) {
	emoji := "✅"
	if rec.NetPnL < 0 {
		emoji = "🔻"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s Closed %s %s (%s)\n", emoji, strings.ToUpper(string(rec.Side)), rec.Symbol, rec.ExitReason)
	fmt.Fprintf(&b, "Entry: %.2f → Exit: %.2f\n", rec.EntryPrice, rec.ExitPrice)
	fmt.Fprintf(&b, "Net PnL: %.2f USD  Held: %s", rec.NetPnL, rec.Held.Round(time.Minute))
	t.send(ctx, b.String())
}

func (t *Telegram) send(ctx context.Context, text string) {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		if t.logger != nil {
			t.logger.Warnw("telegram delivery failed", "error", err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && t.logger != nil {
		t.logger.Warnw("telegram delivery rejected", "status", resp.StatusCode)
	}
}

// Noop is the notifier used when no channel is configured.
type Noop struct{}

func (Noop) NotifyOpen(context.Context, *domain.Position)     {}
func (Noop) NotifyClose(context.Context, *domain.TradeRecord) {}
