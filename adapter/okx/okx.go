package okx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

const (
	DefaultWSURL   = "wss://ws.okx.com:8443/ws/v5/public"
	DefaultRESTURL = "https://www.okx.com"
)

// quoteAssets are matched longest-first when splitting a concatenated
// symbol such as "ethusdt" into OKX's "ETH-USDT" instrument id.
var quoteAssets = []string{"usdt", "usdc", "busd", "btc", "eth", "eur", "usd"}

// Exchange is the OKX V5 candle dialect.
type Exchange struct {
	wsURL      string
	restURL    string
	httpClient *http.Client
}

// New returns the OKX dialect. Empty URLs select the public endpoints.
func New(wsURL, restURL string) *Exchange {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	if restURL == "" {
		restURL = DefaultRESTURL
	}
	return &Exchange{
		wsURL:      wsURL,
		restURL:    strings.TrimRight(restURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Exchange) Name() string { return "okx" }

// StreamURL is the shared public endpoint; the channel is chosen by Subscribe.
func (e *Exchange) StreamURL(selection.Selection) string { return e.wsURL }

// Backfill fetches closed candles over REST for [start, end].
func (e *Exchange) Backfill(ctx context.Context, sel selection.Selection, start, end time.Time) ([]tick.Tick, error) {
	return fetchKlines(ctx, e.httpClient, e.restURL, instIDOf(sel.Symbol), barOf(sel.Interval), start.UnixMilli(), end.UnixMilli())
}

// instIDOf converts "ethusdt" to "ETH-USDT". Symbols without a known quote
// asset are passed through upper-cased.
func instIDOf(symbol string) string {
	s := strings.ToLower(symbol)
	for _, q := range quoteAssets {
		if base, ok := strings.CutSuffix(s, q); ok && base != "" {
			return strings.ToUpper(base) + "-" + strings.ToUpper(q)
		}
	}
	return strings.ToUpper(s)
}

// barOf converts Binance notation to OKX's: minutes stay lowercase, hours
// are upper-case ("1H", "4H").
func barOf(i selection.Interval) string {
	s := string(i)
	if strings.HasSuffix(s, "h") {
		return strings.TrimSuffix(s, "h") + "H"
	}
	return s
}
