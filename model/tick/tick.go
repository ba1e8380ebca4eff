package tick

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one (time, price) observation taken from a kline update.
// The adapter layer produces Ticks; everything downstream treats them as values.
type Tick struct {
	Time  time.Time
	Price decimal.Decimal
}

// New builds a Tick from a Unix millisecond timestamp.
func New(ms int64, price decimal.Decimal) Tick {
	return Tick{Time: time.UnixMilli(ms).UTC(), Price: price}
}

func (t Tick) UnixMilli() int64 { return t.Time.UnixMilli() }
