package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/yitech/pricechart/model/tick"
)

const (
	klinePath = "/api/v3/klines"
	maxLimit  = 1000
)

// fetchKlines requests historical klines from the Binance REST API,
// paginating automatically until the full [startMs, endMs] range is covered.
func fetchKlines(ctx context.Context, client *http.Client, baseURL, symbol, interval string, startMs, endMs int64) ([]tick.Tick, error) {
	var out []tick.Tick

	for {
		batch, err := fetchBatch(ctx, client, baseURL, symbol, interval, startMs, endMs)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)

		// Fewer than maxLimit means we've reached the end of the range.
		if len(batch) < maxLimit {
			break
		}

		// Advance start to just after the last kline's open time.
		startMs = batch[len(batch)-1].UnixMilli() + 1
		if startMs > endMs {
			break
		}
	}

	return out, nil
}

// fetchBatch fetches a single page (up to maxLimit klines) from the API.
func fetchBatch(ctx context.Context, client *http.Client, baseURL, symbol, interval string, startMs, endMs int64) ([]tick.Tick, error) {
	u, err := url.Parse(baseURL + klinePath)
	if err != nil {
		return nil, fmt.Errorf("binance: parse url: %w", err)
	}

	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(maxLimit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: unexpected status %s", resp.Status)
	}

	// Each kline is a JSON array. Binance returns [][]json.RawMessage.
	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("binance: decode response: %w", err)
	}

	return parseKlines(raw)
}

// parseKlines converts the raw Binance wire format into ticks keyed by open
// time and priced at the close, the same pair the websocket stream yields.
//
// Binance kline array layout:
//
//	[0]  Open time       (int64, Unix ms)
//	[1]  Open            (string)
//	[2]  High            (string)
//	[3]  Low             (string)
//	[4]  Close           (string)
//	[5…] Volume, close time, quote volume, trade count… (unused)
func parseKlines(raw [][]json.RawMessage) ([]tick.Tick, error) {
	out := make([]tick.Tick, 0, len(raw))
	for i, r := range raw {
		if len(r) < 5 {
			return nil, fmt.Errorf("binance: kline[%d] has %d fields, want ≥5", i, len(r))
		}

		var openTime int64
		if err := json.Unmarshal(r[0], &openTime); err != nil {
			return nil, fmt.Errorf("binance: kline[%d] open_time: %w", i, err)
		}

		var closeStr string
		if err := json.Unmarshal(r[4], &closeStr); err != nil {
			return nil, fmt.Errorf("binance: kline[%d] close: %w", i, err)
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("binance: kline[%d] close: %w", i, err)
		}

		out = append(out, tick.New(openTime, price))
	}
	return out, nil
}
