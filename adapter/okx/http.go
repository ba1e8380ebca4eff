package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/yitech/pricechart/model/tick"
)

const (
	klinePath = "/api/v5/market/history-candles"
	maxLimit  = 100
)

// fetchKlines requests historical candles from the OKX REST API,
// paginating automatically until the full [startMs, endMs] range is covered.
//
// OKX returns candles newest-first using cursor-based pagination via the
// `after` parameter; this function reverses the result to chronological order.
func fetchKlines(ctx context.Context, client *http.Client, baseURL, instID, bar string, startMs, endMs int64) ([]tick.Tick, error) {
	var all []tick.Tick

	// after=T returns candles with ts < T, so seed with endMs+1 to include endMs.
	after := strconv.FormatInt(endMs+1, 10)

	for {
		batch, err := fetchBatch(ctx, client, baseURL, instID, bar, after)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		// Collect candles that fall within [startMs, endMs]; stop when we go older.
		done := false
		for _, t := range batch {
			if t.UnixMilli() < startMs {
				done = true
				break
			}
			all = append(all, t)
		}

		if done || len(batch) < maxLimit {
			break
		}

		// batch is newest-first; oldest openTime is at the end of all collected.
		after = strconv.FormatInt(all[len(all)-1].UnixMilli(), 10)
	}

	slices.Reverse(all)
	return all, nil
}

// fetchBatch fetches a single page from the OKX history-candles endpoint.
func fetchBatch(ctx context.Context, client *http.Client, baseURL, instID, bar, after string) ([]tick.Tick, error) {
	u, err := url.Parse(baseURL + klinePath)
	if err != nil {
		return nil, fmt.Errorf("okx: parse url: %w", err)
	}

	q := u.Query()
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("after", after)
	q.Set("limit", strconv.Itoa(maxLimit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("okx: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okx: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx: unexpected status %s", resp.Status)
	}

	// OKX envelope
	var envelope struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("okx: decode response: %w", err)
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("okx: api error %s: %s", envelope.Code, envelope.Msg)
	}

	ticks, err := parseRows(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("okx: %w", err)
	}
	return ticks, nil
}
