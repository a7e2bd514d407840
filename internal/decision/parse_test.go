package decision

import (
	"errors"
	"testing"

	"perp-trading-lab/internal/domain"
)

func TestParse_ValidEntry(t *testing.T) {
	raw := `{"symbol":"ETHUSDT","signal":"entry","side":"long","quantity":1.5,"leverage":5,"stop_loss":2880,"take_profit":3150,"confidence":72,"risk_usd":180,"invalidation":"close below 2880 on 1h","justification":"higher low held"}`

	d, err := Parse(raw, "ETHUSDT")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Signal != domain.SignalEntry || d.Side != domain.SideLong {
		t.Errorf("signal/side = %s/%s", d.Signal, d.Side)
	}
	if d.Quantity != 1.5 || d.Leverage != 5 || d.StopLoss != 2880 {
		t.Errorf("entry parameters lost: %+v", d)
	}
}

func TestParse_StripsMarkdownFences(t *testing.T) {
	raw := "```json\n{\"signal\":\"hold\"}\n```"

	d, err := Parse(raw, "BTCUSDT")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Signal != domain.SignalHold {
		t.Errorf("signal = %s, want hold", d.Signal)
	}
	if d.Symbol != "BTCUSDT" {
		t.Errorf("symbol not defaulted: %s", d.Symbol)
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrMalformed},
		{"prose", "I think you should go long here.", ErrMalformed},
		{"truncated json", `{"signal":"entry","side":"lo`, ErrMalformed},
		{"unknown field", `{"signal":"hold","vibes":"good"}`, ErrMalformed},
		{"wrong symbol", `{"symbol":"BTCUSDT","signal":"hold"}`, ErrMalformed},
		{"unknown signal", `{"signal":"yolo"}`, ErrUnknownSignal},
		{"entry no side", `{"signal":"entry","quantity":1,"leverage":5,"stop_loss":2880}`, ErrIncomplete},
		{"entry no stop", `{"signal":"entry","side":"long","quantity":1,"leverage":5}`, ErrIncomplete},
		{"entry zero quantity", `{"signal":"entry","side":"long","quantity":0,"leverage":5,"stop_loss":2880}`, ErrIncomplete},
		{"entry zero leverage", `{"signal":"entry","side":"long","quantity":1,"leverage":0,"stop_loss":2880}`, ErrIncomplete},
		{"confidence over 100", `{"signal":"entry","side":"long","quantity":1,"leverage":5,"stop_loss":2880,"confidence":150}`, ErrIncomplete},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.raw, "ETHUSDT"); !errors.Is(err, tc.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tc.raw, err, tc.want)
			}
		})
	}
}

func TestParse_CloseAndHoldNeedNoParameters(t *testing.T) {
	for _, sig := range []string{"close", "hold"} {
		d, err := Parse(`{"signal":"`+sig+`"}`, "ETHUSDT")
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", sig, err)
		}
		if string(d.Signal) != sig {
			t.Errorf("signal = %s, want %s", d.Signal, sig)
		}
	}
}
