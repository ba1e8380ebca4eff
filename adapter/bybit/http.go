package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/yitech/pricechart/model/tick"
)

const (
	klinePath = "/v5/market/kline"
	maxLimit  = 200
)

// fetchKlines requests historical klines from the Bybit REST API,
// paginating automatically until the full [startMs, endMs] range is covered.
//
// Bybit returns klines newest-first; this function reverses the result
// to chronological order before returning.
func fetchKlines(ctx context.Context, client *http.Client, baseURL, category, symbol, interval string, startMs, endMs int64) ([]tick.Tick, error) {
	var all []tick.Tick
	end := endMs

	for {
		batch, err := fetchBatch(ctx, client, baseURL, category, symbol, interval, startMs, end)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		if len(batch) < maxLimit {
			break
		}

		// batch is newest-first, so the oldest openTime is at the end.
		end = all[len(all)-1].UnixMilli() - 1
		if end < startMs {
			break
		}
	}

	slices.Reverse(all)
	return all, nil
}

// fetchBatch fetches a single page from the Bybit kline endpoint.
func fetchBatch(ctx context.Context, client *http.Client, baseURL, category, symbol, interval string, startMs, endMs int64) ([]tick.Tick, error) {
	u, err := url.Parse(baseURL + klinePath)
	if err != nil {
		return nil, fmt.Errorf("bybit: parse url: %w", err)
	}

	q := u.Query()
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("start", strconv.FormatInt(startMs, 10))
	q.Set("end", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(maxLimit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bybit: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bybit: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit: unexpected status %s", resp.Status)
	}

	// Bybit V5 envelope
	var envelope struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("bybit: decode response: %w", err)
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("bybit: api error %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	return parseKlines(envelope.Result.List)
}

// parseKlines converts the Bybit wire format into ticks.
//
// Bybit kline array layout:
//
//	[0] startTime  (ms)
//	[1] openPrice
//	[2] highPrice
//	[3] lowPrice
//	[4] closePrice
//	[5] volume     (base coin) (unused)
//	[6] turnover   (quote coin) (unused)
func parseKlines(rows [][]string) ([]tick.Tick, error) {
	out := make([]tick.Tick, 0, len(rows))

	for i, r := range rows {
		if len(r) < 5 {
			return nil, fmt.Errorf("bybit: kline[%d] has %d fields, want ≥5", i, len(r))
		}

		openTime, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] open_time: %w", i, err)
		}
		price, err := decimal.NewFromString(r[4])
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] close: %w", i, err)
		}

		out = append(out, tick.New(openTime, price))
	}
	return out, nil
}
