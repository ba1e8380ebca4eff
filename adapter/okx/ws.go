package okx

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

// Subscribe sends the candle channel subscription for sel.
func (e *Exchange) Subscribe(conn *websocket.Conn, sel selection.Selection) error {
	// OKX channel name: "candle" + bar (e.g. "candle1m", "candle4H").
	subMsg := map[string]any{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "candle" + barOf(sel.Interval), "instId": instIDOf(sel.Symbol)},
		},
	}
	return conn.WriteJSON(subMsg)
}

// Respond answers OKX's plain text "ping" frames (not WS protocol pings).
func (e *Exchange) Respond(msg []byte) ([]byte, bool) {
	if string(msg) == "ping" {
		return []byte("pong"), true
	}
	return nil, false
}

func (e *Exchange) Parse(msg []byte) ([]tick.Tick, error) {
	return parseWsMessage(msg)
}

// okxWsMsg is the generic OKX WebSocket message envelope.
type okxWsMsg struct {
	Event string `json:"event"` // "subscribe", "error"
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

// parseWsMessage converts an OKX WebSocket message into ticks.
//
// OKX candle data array layout (same as REST):
//
//	[0] ts        (open time, ms)
//	[1] o
//	[2] h
//	[3] l
//	[4] c
//	[5…] volumes, confirm (unused)
func parseWsMessage(msg []byte) ([]tick.Tick, error) {
	var m okxWsMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}

	// Subscription ack or error; no candle data.
	if m.Event != "" {
		if m.Event == "error" {
			return nil, fmt.Errorf("%w: api error %s: %s", adapter.ErrMalformed, m.Code, m.Msg)
		}
		return nil, nil
	}

	return parseRows(m.Data)
}

func parseRows(rows [][]string) ([]tick.Tick, error) {
	out := make([]tick.Tick, 0, len(rows))
	for i, r := range rows {
		if len(r) < 5 {
			return nil, fmt.Errorf("%w: kline[%d] has %d fields, want ≥5", adapter.ErrMalformed, i, len(r))
		}

		openTime, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: kline[%d] open_time: %v", adapter.ErrMalformed, i, err)
		}
		price, err := decimal.NewFromString(r[4])
		if err != nil {
			return nil, fmt.Errorf("%w: kline[%d] close: %v", adapter.ErrMalformed, i, err)
		}
		out = append(out, tick.New(openTime, price))
	}
	return out, nil
}
