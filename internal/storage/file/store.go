// Package file implements the canonical durable storage backend: a run
// directory holding an atomically replaced portfolio snapshot plus
// append-only JSONL ledgers readable by the dashboard collaborator.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
)

// File names inside a store directory.
const (
	portfolioFile = "portfolio.json"
	tradesFile    = "trades.jsonl"
	decisionsFile = "decisions.jsonl"
	equityFile    = "equity.jsonl"
)

// Store persists the portfolio snapshot and all three ledgers under one
// directory. A single Store owns its directory; concurrent stores over the
// same directory are not supported.
type Store struct {
	dir string

	mu         sync.Mutex
	seenTrades map[string]struct{}
}

// New creates (if needed) the directory and opens a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{dir: dir, seenTrades: make(map[string]struct{})}
	trades, err := s.readTrades()
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		s.seenTrades[t.TradeID] = struct{}{}
	}
	return s, nil
}

// Dir returns the directory this store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// Load deserializes the portfolio snapshot, initializing a fresh portfolio
// with startCapital when no snapshot file exists. A present-but-unreadable
// snapshot is an error, never a silent reset.
func (s *Store) Load(_ context.Context, startCapital float64) (*domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, portfolioFile))
	if os.IsNotExist(err) {
		return domain.NewPortfolio(startCapital), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read portfolio snapshot: %w", err)
	}

	var p domain.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode portfolio snapshot: %w", err)
	}
	if p.Positions == nil {
		p.Positions = make(map[string]*domain.Position)
	}
	return &p, nil
}

// Save atomically persists the full portfolio snapshot via a temp file and
// rename, so readers never observe a partial write.
func (s *Store) Save(_ context.Context, p *domain.Portfolio) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode portfolio snapshot: %w", err)
	}
	return atomicWrite(filepath.Join(s.dir, portfolioFile), data)
}

// Append adds a terminal trade record to trades.jsonl.
func (s *Store) Append(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seenTrades[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	if err := appendLine(filepath.Join(s.dir, tradesFile), t); err != nil {
		return err
	}
	s.seenTrades[t.TradeID] = struct{}{}
	return nil
}

// All returns the trade ledger in insertion order.
func (s *Store) All(_ context.Context) ([]*domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTrades()
}

// AppendDecision adds one decision audit row to decisions.jsonl.
func (s *Store) AppendDecision(_ context.Context, d *domain.DecisionRecord) error {
	if d == nil || d.Symbol == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLine(filepath.Join(s.dir, decisionsFile), d)
}

// AllDecisions returns the decision ledger in insertion order.
func (s *Store) AllDecisions(_ context.Context) ([]*domain.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.DecisionRecord
	err := readLines(filepath.Join(s.dir, decisionsFile), func(line []byte) error {
		var d domain.DecisionRecord
		if err := json.Unmarshal(line, &d); err != nil {
			return fmt.Errorf("decode decision row: %w", err)
		}
		out = append(out, &d)
		return nil
	})
	return out, err
}

// AppendEquity adds one equity observation to equity.jsonl.
func (s *Store) AppendEquity(_ context.Context, pt domain.EquityPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLine(filepath.Join(s.dir, equityFile), pt)
}

// AllEquity returns the equity curve in insertion order.
func (s *Store) AllEquity(_ context.Context) ([]domain.EquityPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.EquityPoint
	err := readLines(filepath.Join(s.dir, equityFile), func(line []byte) error {
		var pt domain.EquityPoint
		if err := json.Unmarshal(line, &pt); err != nil {
			return fmt.Errorf("decode equity row: %w", err)
		}
		out = append(out, pt)
		return nil
	})
	return out, err
}

func (s *Store) readTrades() ([]*domain.TradeRecord, error) {
	var out []*domain.TradeRecord
	err := readLines(filepath.Join(s.dir, tradesFile), func(line []byte) error {
		var t domain.TradeRecord
		if err := json.Unmarshal(line, &t); err != nil {
			return fmt.Errorf("decode trade row: %w", err)
		}
		out = append(out, &t)
		return nil
	})
	return out, err
}

// atomicWrite writes data to a temp file in the same directory, fsyncs, and
// renames it over path.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func appendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode ledger row: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return f.Sync()
}

func readLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// DecisionLedger exposes the store's decision ledger under the
// storage.DecisionLedger interface.
type DecisionLedger struct{ s *Store }

// Decisions returns a ledger view over decisions.jsonl.
func (s *Store) Decisions() *DecisionLedger { return &DecisionLedger{s: s} }

func (l *DecisionLedger) Append(ctx context.Context, d *domain.DecisionRecord) error {
	return l.s.AppendDecision(ctx, d)
}

func (l *DecisionLedger) All(ctx context.Context) ([]*domain.DecisionRecord, error) {
	return l.s.AllDecisions(ctx)
}

// EquityLedger exposes the store's equity ledger under the
// storage.EquityLedger interface.
type EquityLedger struct{ s *Store }

// Equity returns a ledger view over equity.jsonl.
func (s *Store) Equity() *EquityLedger { return &EquityLedger{s: s} }

func (l *EquityLedger) Append(ctx context.Context, pt domain.EquityPoint) error {
	return l.s.AppendEquity(ctx, pt)
}

func (l *EquityLedger) All(ctx context.Context) ([]domain.EquityPoint, error) {
	return l.s.AllEquity(ctx)
}

var (
	_ storage.PortfolioStore = (*Store)(nil)
	_ storage.TradeLedger    = (*Store)(nil)
	_ storage.DecisionLedger = (*DecisionLedger)(nil)
	_ storage.EquityLedger   = (*EquityLedger)(nil)
)
