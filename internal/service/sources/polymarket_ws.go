package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"StormFlow/internal/domain/models"
	"StormFlow/pkg/logger"
)

// PolymarketStream implements QuoteStream over the CLOB market
// websocket channel.
type PolymarketStream struct {
	websocketURL   string
	assetIDs       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	// mu guards conn and pingDone and serializes writes; gorilla
	// connections allow at most one concurrent writer.
	mu       sync.Mutex
	conn     *websocket.Conn
	pingDone chan struct{}
}

// NewPolymarketStream creates a live quote stream for the given asset
// token IDs.
func NewPolymarketStream(websocketURL string, assetIDs []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *PolymarketStream {
	return &PolymarketStream{
		websocketURL:   websocketURL,
		assetIDs:       assetIDs,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection and starts its keepalive
// loop. The loop lives exactly as long as this connection.
func (c *PolymarketStream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket connect: %w", err)
	}
	c.mu.Lock()
	c.stopPingLocked()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	if c.pingInterval > 0 {
		c.pingDone = make(chan struct{})
		go c.pingLoop(conn, c.pingDone)
	}
	c.mu.Unlock()
	c.log.Info("polymarket stream connected")
	return nil
}

func (c *PolymarketStream) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Subscribe registers for price updates on the configured assets.
func (c *PolymarketStream) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("polymarket stream not connected")
	}
	msg := map[string]interface{}{
		"type":       "market",
		"assets_ids": c.assetIDs,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("polymarket subscribe: %w", err)
	}
	c.log.Info("polymarket stream subscribed", logger.Int("assets", len(c.assetIDs)))
	return nil
}

type wsPriceChange struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"` // milliseconds
}

// Read streams quotes and errors until ctx is done or the connection
// breaks. Frames that are not price changes are ignored; quotes are
// dropped on backpressure rather than stalling the read loop.
func (c *PolymarketStream) Read(ctx context.Context) (<-chan models.MarketQuote, <-chan error) {
	quotes := make(chan models.MarketQuote, 1024)
	errs := make(chan error, 1)
	conn := c.current()

	go func() {
		defer close(quotes)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("polymarket stream not connected")
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("polymarket read: %w", err)
				return
			}
			for _, q := range decodePriceFrame(b) {
				select {
				case quotes <- q:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return quotes, errs
}

// decodePriceFrame extracts quotes from one websocket frame. Frames
// arrive either as a single event or an array of events.
func decodePriceFrame(b []byte) []models.MarketQuote {
	var events []wsPriceChange
	if err := json.Unmarshal(b, &events); err != nil {
		var single wsPriceChange
		if err := json.Unmarshal(b, &single); err != nil {
			return nil
		}
		events = []wsPriceChange{single}
	}

	var out []models.MarketQuote
	for _, ev := range events {
		if ev.EventType != "price_change" {
			continue
		}
		prob, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil {
			continue
		}
		ms, err := strconv.ParseInt(ev.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		size, _ := strconv.ParseFloat(ev.Size, 64)
		q := models.MarketQuote{
			Timestamp:   time.UnixMilli(ms).UTC(),
			ScrapedAt:   time.Now().UTC(),
			MarketID:    ev.Market,
			OutcomeName: ev.AssetID,
			Probability: prob,
			Volume:      size,
		}
		if !validQuote(q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Reconnect closes the connection and dials again after the configured
// delay.
func (c *PolymarketStream) Reconnect(ctx context.Context) error {
	_ = c.Close()
	timer := time.NewTimer(c.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close stops the keepalive loop and closes the connection.
func (c *PolymarketStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPingLocked()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *PolymarketStream) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *PolymarketStream) stopPingLocked() {
	if c.pingDone != nil {
		close(c.pingDone)
		c.pingDone = nil
	}
}
