package bybit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/model/selection"
)

func TestIntervalOf(t *testing.T) {
	tests := map[selection.Interval]string{
		"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30", "1h": "60", "4h": "240",
	}
	for in, want := range tests {
		assert.Equal(t, want, intervalOf(in), in)
	}
}

func TestParseWsMessage(t *testing.T) {
	msg := []byte(`{"topic":"kline.1.ETHUSDT","type":"snapshot","ts":1700000001000,"data":[{"start":1700000000000,"end":1700000059999,"interval":"1","open":"2499","close":"2500.15","high":"2501","low":"2498","volume":"3","confirm":false}]}`)

	ticks, err := New("", "").Parse(msg)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, int64(1700000000000), ticks[0].UnixMilli())
	assert.Equal(t, "2500.15", ticks[0].Price.String())
}

func TestParseControlAndMalformed(t *testing.T) {
	ticks, err := parseWsMessage([]byte(`{"op":"pong","success":true}`))
	assert.NoError(t, err)
	assert.Empty(t, ticks)

	for _, msg := range []string{
		`not json`,
		`{"topic":"kline.1.ETHUSDT","data":{"start":1}}`,
		`{"topic":"kline.1.ETHUSDT","data":[{"start":1700000000000}]}`,
		`{"topic":"kline.1.ETHUSDT","data":[{"start":1700000000000,"close":"x"}]}`,
	} {
		_, err := parseWsMessage([]byte(msg))
		assert.True(t, errors.Is(err, adapter.ErrMalformed), msg)
	}
}

func TestStreamURLAndHeartbeat(t *testing.T) {
	ex := New("ws://127.0.0.1:1/v5/public/", "")
	assert.Equal(t, "ws://127.0.0.1:1/v5/public/linear", ex.StreamURL(selection.Default()))
	assert.Equal(t, 20*time.Second, ex.PingInterval())
	assert.Equal(t, map[string]string{"op": "ping"}, ex.PingFrame())
}

func TestBackfillReversesToChronological(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "240", r.URL.Query().Get("interval"))
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			["1700014400000","1","1","1","2502","1","1"],
			["1700000000000","1","1","1","2500","1","1"]
		]}}`)
	}))
	defer srv.Close()

	start := time.UnixMilli(1700000000000)
	ticks, err := New("", srv.URL).Backfill(context.Background(), selection.New("ethusdt", "4h"), start, start.Add(8*time.Hour))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, int64(1700000000000), ticks[0].UnixMilli())
	assert.Equal(t, "2502", ticks[1].Price.String())
}

func TestBackfillAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error"}`)
	}))
	defer srv.Close()

	_, err := New("", srv.URL).Backfill(context.Background(), selection.Default(), time.Now().Add(-time.Hour), time.Now())
	assert.ErrorContains(t, err, "params error")
}
