package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/model/selection"
)

func TestBackfill(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, klinePath, r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[
			[1700000000000,"2499.00","2501.00","2498.50","2500.15","12.5",1700000059999,"0",10,"0","0","0"],
			[1700000060000,"2500.15","2502.00","2499.00","2501.00","8.1",1700000119999,"0",7,"0","0","0"]
		]`)
	}))
	defer srv.Close()

	ex := New("", srv.URL)
	start := time.UnixMilli(1700000000000)
	ticks, err := ex.Backfill(context.Background(), selection.New("ethusdt", "1m"), start, start.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, int64(1700000060000), ticks[1].UnixMilli())
	assert.Equal(t, "2501", ticks[1].Price.String())
	assert.Contains(t, gotQuery, "symbol=ETHUSDT")
	assert.Contains(t, gotQuery, "interval=1m")
}

func TestBackfillErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad status", http.StatusTooManyRequests, `{}`},
		{"bad body", http.StatusOK, `{"code":-1}`},
		{"short row", http.StatusOK, `[[1700000000000,"1"]]`},
		{"bad close", http.StatusOK, `[[1700000000000,"1","1","1","x"]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := New("", srv.URL).Backfill(context.Background(), selection.Default(), time.Now().Add(-time.Hour), time.Now())
			assert.Error(t, err)
		})
	}
}
