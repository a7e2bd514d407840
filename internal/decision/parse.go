package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"perp-trading-lab/internal/domain"
)

// Parse errors. A decision that fails parsing is rejected outright; fields
// are never guessed or defaulted into a tradable decision.
var (
	ErrMalformed     = errors.New("malformed decision payload")
	ErrUnknownSignal = errors.New("unknown decision signal")
	ErrIncomplete    = errors.New("incomplete entry decision")
)

// Parse decodes and validates one decision from raw model output. Markdown
// code fences around the JSON are tolerated; anything else non-JSON is not.
func Parse(raw string, symbol string) (*domain.Decision, error) {
	payload := stripFences(strings.TrimSpace(raw))
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()

	var d domain.Decision
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if d.Symbol == "" {
		d.Symbol = symbol
	} else if d.Symbol != symbol {
		return nil, fmt.Errorf("%w: decision for %s, expected %s", ErrMalformed, d.Symbol, symbol)
	}

	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks a decision's structural consistency.
func Validate(d *domain.Decision) error {
	switch d.Signal {
	case domain.SignalHold, domain.SignalClose:
		return nil
	case domain.SignalEntry:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, d.Signal)
	}

	if d.Side != domain.SideLong && d.Side != domain.SideShort {
		return fmt.Errorf("%w: side %q", ErrIncomplete, d.Side)
	}
	if d.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %f", ErrIncomplete, d.Quantity)
	}
	if d.Leverage < 1 {
		return fmt.Errorf("%w: leverage %d", ErrIncomplete, d.Leverage)
	}
	if d.StopLoss <= 0 {
		return fmt.Errorf("%w: stop loss %f", ErrIncomplete, d.StopLoss)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("%w: confidence %d", ErrIncomplete, d.Confidence)
	}
	return nil
}

// stripFences removes a single surrounding markdown code fence, with or
// without a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line ("json").
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
