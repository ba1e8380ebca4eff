package bybit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

// pingInterval is how often we send a heartbeat to keep the connection alive.
const pingInterval = 20 * time.Second

// Subscribe sends the kline topic subscription for sel.
func (e *Exchange) Subscribe(conn *websocket.Conn, sel selection.Selection) error {
	topic := fmt.Sprintf("kline.%s.%s", intervalOf(sel.Interval), symbolOf(sel))
	subMsg := map[string]any{
		"op":   "subscribe",
		"args": []string{topic},
	}
	return conn.WriteJSON(subMsg)
}

// Bybit requires a ping every 20 s or it closes the connection.
func (e *Exchange) PingFrame() any               { return map[string]string{"op": "ping"} }
func (e *Exchange) PingInterval() time.Duration { return pingInterval }

func (e *Exchange) Parse(msg []byte) ([]tick.Tick, error) {
	return parseWsMessage(msg)
}

// bybitWsMsg is the generic Bybit V5 WebSocket message envelope.
type bybitWsMsg struct {
	Op      string          `json:"op"`      // "pong", "subscribe"
	Success bool            `json:"success"` // subscription ack
	Topic   string          `json:"topic"`   // "kline.1.BTCUSDT"
	Type    string          `json:"type"`    // "snapshot" | "delta"
	Data    json.RawMessage `json:"data"`
}

// bybitKlineEntry is one kline object inside the data array.
type bybitKlineEntry struct {
	Start int64  `json:"start"` // open time (ms)
	Close string `json:"close"`
}

func parseWsMessage(msg []byte) ([]tick.Tick, error) {
	var m bybitWsMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}

	// Ignore control messages (pong, subscribe ack).
	if m.Topic == "" {
		return nil, nil
	}

	var entries []bybitKlineEntry
	if err := json.Unmarshal(m.Data, &entries); err != nil {
		return nil, fmt.Errorf("%w: data: %v", adapter.ErrMalformed, err)
	}

	out := make([]tick.Tick, 0, len(entries))
	for i, e := range entries {
		if e.Start == 0 || e.Close == "" {
			return nil, fmt.Errorf("%w: kline[%d] missing start or close", adapter.ErrMalformed, i)
		}
		price, err := decimal.NewFromString(e.Close)
		if err != nil {
			return nil, fmt.Errorf("%w: kline[%d] close: %v", adapter.ErrMalformed, i, err)
		}
		out = append(out, tick.New(e.Start, price))
	}
	return out, nil
}
