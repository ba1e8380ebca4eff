package binance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

const (
	DefaultWSURL   = "wss://stream.binance.com:9443/ws"
	DefaultRESTURL = "https://api.binance.com"
)

// Exchange is the Binance spot kline dialect.
type Exchange struct {
	wsURL      string
	restURL    string
	httpClient *http.Client
}

// New returns the Binance dialect. Empty URLs select the public endpoints.
func New(wsURL, restURL string) *Exchange {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	if restURL == "" {
		restURL = DefaultRESTURL
	}
	return &Exchange{
		wsURL:      strings.TrimRight(wsURL, "/"),
		restURL:    strings.TrimRight(restURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Exchange) Name() string { return "binance" }

// StreamURL addresses the raw kline stream, e.g. .../ws/ethusdt@kline_1m.
func (e *Exchange) StreamURL(sel selection.Selection) string {
	return e.wsURL + "/" + strings.ToLower(sel.Symbol) + "@kline_" + string(sel.Interval)
}

// Subscribe is a no-op: the stream is selected by URL.
func (e *Exchange) Subscribe(*websocket.Conn, selection.Selection) error { return nil }

func (e *Exchange) Parse(msg []byte) ([]tick.Tick, error) {
	t, err := parseWsKline(msg)
	if err != nil {
		return nil, err
	}
	return []tick.Tick{t}, nil
}

// Backfill fetches closed klines over REST for [start, end].
func (e *Exchange) Backfill(ctx context.Context, sel selection.Selection, start, end time.Time) ([]tick.Tick, error) {
	return fetchKlines(ctx, e.httpClient, e.restURL, strings.ToUpper(sel.Symbol), string(sel.Interval), start.UnixMilli(), end.UnixMilli())
}
