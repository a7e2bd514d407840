package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"perp-trading-lab/internal/domain"
)

func TestHTTP_ForwardOpen(t *testing.T) {
	var gotPath string
	var gotIntent OrderIntent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotIntent)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := NewHTTP(srv.URL, nil)
	err := f.ForwardOpen(context.Background(), &domain.Position{
		Symbol: "ETHUSDT", Side: domain.SideLong,
		Quantity: 1.5, Leverage: 5, StopLoss: 2880, TakeProfit: 3150,
	})
	if err != nil {
		t.Fatalf("ForwardOpen failed: %v", err)
	}
	if gotPath != "/orders" {
		t.Errorf("path = %s", gotPath)
	}
	if gotIntent.Symbol != "ETHUSDT" || gotIntent.StopLoss != 2880 {
		t.Errorf("intent = %+v", gotIntent)
	}
}

func TestHTTP_ForwardCloseReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTP(srv.URL, nil)
	err := f.ForwardClose(context.Background(), &domain.TradeRecord{
		Symbol: "ETHUSDT", Side: domain.SideLong, ExitReason: domain.ExitReasonStopLoss,
	})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}
