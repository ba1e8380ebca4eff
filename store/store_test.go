package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
	"github.com/yitech/pricechart/store"
	"github.com/yitech/pricechart/store/memory"
)

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (string, error) { return "", f.err }
func (f failingStore) Set(context.Context, string, string) error   { return f.err }
func (f failingStore) Close() error                                { return nil }

func TestSelectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	p := store.NewPrefs(mem, nil)

	assert.Equal(t, selection.Default(), p.LoadSelection(ctx, selection.Default()))

	sel := selection.New("btcusdt", "15m")
	require.NoError(t, p.SaveSelection(ctx, sel))
	assert.Equal(t, sel, p.LoadSelection(ctx, selection.Default()))

	dump := mem.Dump()
	assert.Equal(t, "btcusdt", dump[store.KeySymbol])
	assert.Equal(t, "15m", dump[store.KeyInterval])
}

func TestLoadSelectionFallsBack(t *testing.T) {
	ctx := context.Background()
	fallback := selection.Default()

	t.Run("only symbol stored", func(t *testing.T) {
		mem := memory.New()
		require.NoError(t, mem.Set(ctx, store.KeySymbol, "btcusdt"))
		assert.Equal(t, fallback, store.NewPrefs(mem, nil).LoadSelection(ctx, fallback))
	})

	t.Run("invalid symbol stored", func(t *testing.T) {
		mem := memory.New()
		require.NoError(t, mem.Set(ctx, store.KeySymbol, "eth/usdt"))
		require.NoError(t, mem.Set(ctx, store.KeyInterval, "1m"))
		assert.Equal(t, fallback, store.NewPrefs(mem, nil).LoadSelection(ctx, fallback))
	})

	t.Run("backend failure", func(t *testing.T) {
		p := store.NewPrefs(failingStore{errors.New("down")}, nil)
		assert.Equal(t, fallback, p.LoadSelection(ctx, fallback))
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	p := store.NewPrefs(mem, nil)
	sel := selection.New("ethusdt", "1h")

	_, ok := p.LoadSnapshot(ctx, sel)
	assert.False(t, ok)

	series := buffer.FromTicks([]tick.Tick{
		tick.New(1700000000000, decimal.RequireFromString("2500.15")),
		tick.New(1700003600000, decimal.RequireFromString("2510")),
	})
	require.NoError(t, p.SaveSnapshot(ctx, sel, series))

	_, stored := mem.Dump()["ethusdt_1h_data"]
	assert.True(t, stored)

	got, ok := p.LoadSnapshot(ctx, sel)
	require.True(t, ok)
	require.Equal(t, 2, got.Len())
	assert.True(t, got.Labels[1].Equal(time.UnixMilli(1700003600000)))
	assert.True(t, got.Prices[0].Equal(decimal.RequireFromString("2500.15")))

	_, ok = p.LoadSnapshot(ctx, selection.New("ethusdt", "4h"))
	assert.False(t, ok, "snapshots are keyed per selection")
}

func TestCorruptSnapshotIsIgnored(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	sel := selection.Default()
	require.NoError(t, mem.Set(ctx, sel.SnapshotKey(), `{"labels":["x"]`))

	_, ok := store.NewPrefs(mem, nil).LoadSnapshot(ctx, sel)
	assert.False(t, ok)
}

func TestSaveErrorsAreWrapped(t *testing.T) {
	down := errors.New("down")
	p := store.NewPrefs(failingStore{down}, nil)
	assert.ErrorIs(t, p.SaveSelection(context.Background(), selection.Default()), down)
	assert.ErrorIs(t, p.SaveSnapshot(context.Background(), selection.Default(), buffer.Series{}), down)
}
