package bybit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

const (
	DefaultWSURL   = "wss://stream.bybit.com/v5/public"
	DefaultRESTURL = "https://api.bybit.com"
)

// Exchange is the Bybit V5 kline dialect.
type Exchange struct {
	wsURL      string
	restURL    string
	category   string // "linear" | "spot" | "inverse"
	httpClient *http.Client
}

// New returns the Bybit dialect for the linear category. Empty URLs select
// the public endpoints.
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
		category:   "linear",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Exchange) Name() string { return "bybit" }

func (e *Exchange) StreamURL(selection.Selection) string {
	return e.wsURL + "/" + e.category
}

// Backfill fetches klines over REST for [start, end].
func (e *Exchange) Backfill(ctx context.Context, sel selection.Selection, start, end time.Time) ([]tick.Tick, error) {
	return fetchKlines(ctx, e.httpClient, e.restURL, e.category, symbolOf(sel), intervalOf(sel.Interval), start.UnixMilli(), end.UnixMilli())
}

func symbolOf(sel selection.Selection) string {
	return strings.ToUpper(sel.Symbol)
}

// intervalOf converts Binance notation to Bybit's minute counts.
func intervalOf(i selection.Interval) string {
	switch i {
	case selection.Interval1h:
		return "60"
	case selection.Interval4h:
		return "240"
	default:
		return strings.TrimSuffix(string(i), "m")
	}
}
