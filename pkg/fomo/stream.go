package fomo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/fomo-trader/pkg/models"
	"github.com/sirupsen/logrus"
)

type SubscribeMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Symbols  []string `json:"symbols"`
}

type TickerMessage struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	LastPrice *float64  `json:"last_price"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message,omitempty"`
}

// TickerStream keeps the latest streamed price for one symbol.
type TickerStream struct {
	url            string
	symbol         string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *logrus.Logger

	mu        sync.RWMutex
	latest    models.Ticker
	hasPrice  bool
	connected bool

	now func() time.Time
}

func NewTickerStream(url, symbol string, reconnectDelay time.Duration, logger *logrus.Logger) *TickerStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &TickerStream{
		url:            url,
		symbol:         symbol,
		reconnectDelay: reconnectDelay,
		pingInterval:   30 * time.Second,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *TickerStream) Symbol() string {
	return s.symbol
}

// Latest returns the most recent ticker. Its Timestamp is the local receive time.
func (s *TickerStream) Latest() (models.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasPrice
}

func (s *TickerStream) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Run connects and reads until ctx is cancelled, reconnecting after failures.
func (s *TickerStream) Run(ctx context.Context) {
	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.WithError(err).WithField("symbol", s.symbol).Warn("Ticker stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *TickerStream) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer conn.Close()

	sub := SubscribeMessage{
		Type:     "subscribe",
		Channels: []string{"ticker"},
		Symbols:  []string{s.symbol},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.setConnected(true)
	defer s.setConnected(false)
	s.logger.WithField("symbol", s.symbol).Info("Ticker stream connected")

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		var msg TickerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read websocket message: %w", err)
		}

		s.handle(msg)
	}
}

func (s *TickerStream) handle(msg TickerMessage) {
	switch msg.Type {
	case "ticker":
		if msg.Symbol != "" && msg.Symbol != s.symbol {
			return
		}
		if msg.LastPrice == nil {
			s.logger.WithField("symbol", s.symbol).Warn("Ticker message without last_price ignored")
			return
		}
		s.store(*msg.LastPrice)
	case "error":
		s.logger.WithField("message", msg.Message).Error("Ticker stream error message")
	}
}

// keepAlive pings the server and closes the connection when ctx is cancelled so
// the blocking read in connectAndRead returns.
func (s *TickerStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.WithError(err).Error("Failed to send ping")
				conn.Close()
				return
			}
		}
	}
}

func (s *TickerStream) store(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = models.Ticker{
		Symbol:    s.symbol,
		LastPrice: price,
		Timestamp: s.now(),
	}
	s.hasPrice = true
}

func (s *TickerStream) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// StreamingClient serves last prices from a TickerStream while they are fresh and
// falls back to the wrapped Client otherwise. Positions and orders always use the wrapped Client.
type StreamingClient struct {
	Client
	stream *TickerStream
	maxAge time.Duration
	now    func() time.Time
}

func NewStreamingClient(client Client, stream *TickerStream, maxAge time.Duration) *StreamingClient {
	return &StreamingClient{
		Client: client,
		stream: stream,
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (c *StreamingClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if symbol == c.stream.Symbol() {
		if t, ok := c.stream.Latest(); ok && c.now().Sub(t.Timestamp) <= c.maxAge {
			return t.LastPrice, nil
		}
	}
	return c.Client.GetLastPrice(ctx, symbol)
}
