package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/model/tick"
)

// wsKlineMsg is the part of the Binance kline envelope the chart needs.
// Only k.t (bar open time) and k.c (close price) are read; pointers tell a
// missing field apart from a zero value. k.T must have its own field:
// encoding/json matches keys case-insensitively and would otherwise decode
// the close time into OpenTime.
type wsKlineMsg struct {
	Kline *struct {
		OpenTime  *int64  `json:"t"`
		CloseTime *int64  `json:"T"`
		Close     *string `json:"c"`
	} `json:"k"`
}

func parseWsKline(msg []byte) (tick.Tick, error) {
	var m wsKlineMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return tick.Tick{}, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}
	k := m.Kline
	if k == nil || k.OpenTime == nil || k.Close == nil {
		return tick.Tick{}, fmt.Errorf("%w: missing k.t or k.c", adapter.ErrMalformed)
	}
	price, err := decimal.NewFromString(*k.Close)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("%w: close %q: %v", adapter.ErrMalformed, *k.Close, err)
	}
	return tick.New(*k.OpenTime, price), nil
}
