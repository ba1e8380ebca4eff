package buffer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/model/tick"
)

var baseTime = time.UnixMilli(1700000000000).UTC()

func createSequentialTicks(count int) []tick.Tick {
	ticks := make([]tick.Tick, count)
	for i := range count {
		ticks[i] = tick.Tick{
			Time:  baseTime.Add(time.Duration(i) * time.Minute),
			Price: decimal.NewFromInt(2500 + int64(i)),
		}
	}
	return ticks
}

func TestNewDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-3).Cap())
	assert.Equal(t, 5, New(5).Cap())
	assert.Equal(t, 0, New(5).Len())
}

func TestAppendRetainsMostRecent(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appended int
	}{
		{"empty", 4, 0},
		{"under capacity", 4, 3},
		{"exactly full", 4, 4},
		{"one over", 4, 5},
		{"many wraps", 4, 23},
		{"capacity one", 1, 7},
		{"default capacity", DefaultCapacity, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.capacity)
			ticks := createSequentialTicks(tt.appended)
			for _, tk := range ticks {
				b.Append(tk)
				assert.LessOrEqual(t, b.Len(), b.Cap())
			}

			keep := min(tt.appended, tt.capacity)
			want := ticks[len(ticks)-keep:]
			got := b.Series()
			assert.Equal(t, keep, got.Len())
			assert.Equal(t, FromTicks(want), got)
		})
	}
}

func TestSeriesIsACopy(t *testing.T) {
	b := New(3)
	for _, tk := range createSequentialTicks(2) {
		b.Append(tk)
	}
	s := b.Series()
	s.Prices[0] = decimal.NewFromInt(-1)

	assert.True(t, b.Series().Prices[0].Equal(decimal.NewFromInt(2500)))
}

func TestRestore(t *testing.T) {
	t.Run("under capacity round-trips unchanged", func(t *testing.T) {
		b := New(10)
		in := FromTicks(createSequentialTicks(6))
		b.Restore(in)
		assert.Equal(t, in, b.Series())
	})

	t.Run("over capacity drops oldest", func(t *testing.T) {
		b := New(4)
		ticks := createSequentialTicks(9)
		b.Restore(FromTicks(ticks))
		assert.Equal(t, FromTicks(ticks[5:]), b.Series())
	})

	t.Run("replaces previous contents", func(t *testing.T) {
		b := New(4)
		for _, tk := range createSequentialTicks(4) {
			b.Append(tk)
		}
		b.Restore(Series{})
		assert.Equal(t, 0, b.Len())

		next := tick.New(1700000600000, decimal.RequireFromString("1.5"))
		b.Append(next)
		last, ok := b.Series().Last()
		require.True(t, ok)
		assert.Equal(t, next, last)
	})
}

func TestReset(t *testing.T) {
	b := New(2)
	for _, tk := range createSequentialTicks(3) {
		b.Append(tk)
	}
	b.Reset()
	assert.Equal(t, 0, b.Len())
	_, ok := b.Series().Last()
	assert.False(t, ok)
}

func TestSeriesTicksRoundTrip(t *testing.T) {
	ticks := createSequentialTicks(3)
	assert.Equal(t, ticks, FromTicks(ticks).Ticks())
}
