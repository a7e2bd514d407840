package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"perp-trading-lab/internal/domain"
)

func testSnapshot() *domain.Snapshot {
	bar := domain.IndicatorBar{
		Kline: domain.Kline{OpenTime: 1_700_000_000_000, Close: 3000, High: 3010, Low: 2990},
		EMA20: 2990, EMA50: 2950, RSI14: 55,
	}
	view := domain.TimeframeView{Interval: "15m", Bars: []domain.IndicatorBar{bar}, SwingHigh: 3050, SwingLow: 2900}
	return &domain.Snapshot{
		Symbol:    "ETHUSDT",
		Timestamp: time.UnixMilli(1_700_000_900_000),
		Price:     3000,
		Execution: view,
		Structure: view,
		Trend:     view,
	}
}

func TestLLM_DecideParsesCompletion(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request body undecodable: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected message layout: %+v", req.Messages)
		}

		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"signal\":\"entry\",\"side\":\"long\",\"quantity\":1.5,\"leverage\":5,\"stop_loss\":2880,\"confidence\":70}"}}]}`)
	}))
	defer srv.Close()

	llm := NewLLM(LLMConfig{Endpoint: srv.URL, APIKey: "sk-test", Model: "test-model"}, nil)
	d, err := llm.Decide(context.Background(), testSnapshot(), domain.NewPortfolio(10000))
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if d.Signal != domain.SignalEntry || d.StopLoss != 2880 {
		t.Errorf("decision wrong: %+v", d)
	}
}

func TestLLM_DecideRejectsProseReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Markets look choppy, I would wait."}}]}`)
	}))
	defer srv.Close()

	llm := NewLLM(LLMConfig{Endpoint: srv.URL, Model: "test-model"}, nil)
	if _, err := llm.Decide(context.Background(), testSnapshot(), domain.NewPortfolio(10000)); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestLLM_DecideSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	llm := NewLLM(LLMConfig{Endpoint: srv.URL, Model: "test-model"}, nil)
	if _, err := llm.Decide(context.Background(), testSnapshot(), domain.NewPortfolio(10000)); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestBuildPrompt_IncludesOpenPosition(t *testing.T) {
	p := domain.NewPortfolio(10000)
	p.Positions["ETHUSDT"] = &domain.Position{
		Symbol: "ETHUSDT", Side: domain.SideLong,
		EntryPrice: 3000, Quantity: 1.5, Leverage: 5,
		StopLoss: 2880, Margin: 900,
	}

	prompt, err := buildPrompt(testSnapshot(), p)
	if err != nil {
		t.Fatalf("buildPrompt failed: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(prompt), &doc); err != nil {
		t.Fatalf("prompt is not JSON: %v", err)
	}
	if _, ok := doc["open_position"]; !ok {
		t.Error("prompt missing open_position")
	}
	if _, ok := doc["timeframes"]; !ok {
		t.Error("prompt missing timeframes")
	}
}
