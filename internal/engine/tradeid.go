package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"perp-trading-lab/internal/domain"
)

// tradeID derives a deterministic identifier from the trade's content, so a
// replay of the same bar sequence produces a byte-identical ledger and a
// re-run cannot double-append the same trade.
func tradeID(t *domain.TradeRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.8f|%d|%.8f|%.8f|%d|%d|%s",
		t.Symbol, t.Side, t.Quantity, t.Leverage,
		t.EntryPrice, t.ExitPrice,
		t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(),
		t.ExitReason)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
