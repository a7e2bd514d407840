package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
)

// DefaultBinanceStreamURL is the Binance USDⓈ-M futures combined stream
// endpoint.
const DefaultBinanceStreamURL = "wss://fstream.binance.com/stream"

// KlineEvent is one closed kline delivered by the stream.
type KlineEvent struct {
	Symbol   string
	Interval string
	Kline    domain.Kline
}

// StreamConfig configures kline stream behavior.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns the default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// KlineStream subscribes to closed klines for a set of symbol/interval pairs
// over the combined futures stream. It reconnects with exponential backoff;
// the subscription set is encoded in the URL, so reconnecting resubscribes.
type KlineStream struct {
	url    string
	config StreamConfig
	logger *zap.SugaredLogger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan KlineEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewKlineStream connects and starts streaming closed klines for every
// symbol crossed with every interval. baseURL may be empty to use the
// production endpoint. Events arrive on Events(); slow consumers block the
// reader rather than losing klines.
func NewKlineStream(ctx context.Context, baseURL string, symbols, intervals []string, config *StreamConfig, logger *zap.SugaredLogger) (*KlineStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if baseURL == "" {
		baseURL = DefaultBinanceStreamURL
	}

	streams := make([]string, 0, len(symbols)*len(intervals))
	for _, sym := range symbols {
		for _, iv := range intervals {
			streams = append(streams, strings.ToLower(sym)+"@kline_"+iv)
		}
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("no streams to subscribe")
	}

	s := &KlineStream{
		url:    baseURL + "?streams=" + strings.Join(streams, "/"),
		config: cfg,
		logger: logger,
		events: make(chan KlineEvent, 1024),
		done:   make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Events returns the closed-kline channel. It is closed by Close.
func (s *KlineStream) Events() <-chan KlineEvent {
	return s.events
}

// Close shuts down the stream and closes the event channel.
func (s *KlineStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

func (s *KlineStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *KlineStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect(reconnectDelay) {
				return
			}
			reconnectDelay = bump(reconnectDelay, s.config.MaxReconnectDelay)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if s.logger != nil {
				s.logger.Warnw("stream read failed, reconnecting", "error", err)
			}
			s.connMu.Lock()
			s.conn.Close()
			s.conn = nil
			s.connMu.Unlock()

			if !s.reconnect(reconnectDelay) {
				return
			}
			reconnectDelay = bump(reconnectDelay, s.config.MaxReconnectDelay)
			continue
		}

		reconnectDelay = s.config.ReconnectDelay
		s.handleMessage(message)
	}
}

// reconnect waits delay then dials again. Returns false when the stream was
// closed while waiting.
func (s *KlineStream) reconnect(delay time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warnw("stream reconnect failed", "error", err)
		}
		// Leave conn nil; readLoop retries with a larger delay.
		return !s.closed.Load()
	}
	return true
}

func (s *KlineStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

func (s *KlineStream) handleMessage(message []byte) {
	var env struct {
		Stream string `json:"stream"`
		Data   struct {
			EventType string `json:"e"`
			Symbol    string `json:"s"`
			Kline     struct {
				OpenTime  int64  `json:"t"`
				CloseTime int64  `json:"T"`
				Interval  string `json:"i"`
				Open      string `json:"o"`
				High      string `json:"h"`
				Low       string `json:"l"`
				Close     string `json:"c"`
				Volume    string `json:"v"`
				Closed    bool   `json:"x"`
			} `json:"k"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &env); err != nil || env.Data.EventType != "kline" {
		return
	}
	// Forming bars update many times; only the closed bar is actionable.
	if !env.Data.Kline.Closed {
		return
	}

	k := env.Data.Kline
	kline := domain.Kline{OpenTime: k.OpenTime, CloseTime: k.CloseTime}
	fields := []struct {
		s   string
		dst *float64
	}{
		{k.Open, &kline.Open},
		{k.High, &kline.High},
		{k.Low, &kline.Low},
		{k.Close, &kline.Close},
		{k.Volume, &kline.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.s, 64)
		if err != nil {
			if s.logger != nil {
				s.logger.Warnw("dropping malformed kline event", "stream", env.Stream, "error", err)
			}
			return
		}
		*f.dst = v
	}

	select {
	case s.events <- KlineEvent{Symbol: env.Data.Symbol, Interval: k.Interval, Kline: kline}:
	case <-s.done:
	}
}

func bump(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}
