// Package buffer holds the rolling window of samples behind the chart.
package buffer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yitech/pricechart/model/tick"
)

// DefaultCapacity is the window size used when none is configured.
const DefaultCapacity = 100

// Series is the chart-facing view of the window: parallel label and price
// sequences, oldest first.
type Series struct {
	Labels []time.Time
	Prices []decimal.Decimal
}

// Len returns the number of samples in s.
func (s Series) Len() int { return len(s.Labels) }

// Ticks zips the series back into ticks.
func (s Series) Ticks() []tick.Tick {
	n := min(len(s.Labels), len(s.Prices))
	out := make([]tick.Tick, n)
	for i := range n {
		out[i] = tick.Tick{Time: s.Labels[i], Price: s.Prices[i]}
	}
	return out
}

// FromTicks builds a Series in the given order.
func FromTicks(ticks []tick.Tick) Series {
	s := Series{
		Labels: make([]time.Time, len(ticks)),
		Prices: make([]decimal.Decimal, len(ticks)),
	}
	for i, t := range ticks {
		s.Labels[i] = t.Time
		s.Prices[i] = t.Price
	}
	return s
}

// Last returns the newest sample.
func (s Series) Last() (tick.Tick, bool) {
	n := min(len(s.Labels), len(s.Prices))
	if n == 0 {
		return tick.Tick{}, false
	}
	return tick.Tick{Time: s.Labels[n-1], Price: s.Prices[n-1]}, true
}

// Buffer is a fixed-capacity FIFO ring of ticks. Once full, each Append
// evicts the single oldest tick. Buffer is not safe for concurrent use.
type Buffer struct {
	ring []tick.Tick
	head int // index of the oldest tick
	n    int
}

// New creates an empty Buffer; capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]tick.Tick, capacity)}
}

// Cap returns the maximum number of retained ticks.
func (b *Buffer) Cap() int { return len(b.ring) }

// Len returns the number of retained ticks.
func (b *Buffer) Len() int { return b.n }

// Append adds t as the newest tick, evicting the oldest when full.
func (b *Buffer) Append(t tick.Tick) {
	if b.n < len(b.ring) {
		b.ring[(b.head+b.n)%len(b.ring)] = t
		b.n++
		return
	}
	b.ring[b.head] = t
	b.head = (b.head + 1) % len(b.ring)
}

// Series copies the retained ticks out in arrival order.
func (b *Buffer) Series() Series {
	s := Series{
		Labels: make([]time.Time, b.n),
		Prices: make([]decimal.Decimal, b.n),
	}
	for i := range b.n {
		t := b.ring[(b.head+i)%len(b.ring)]
		s.Labels[i] = t.Time
		s.Prices[i] = t.Price
	}
	return s
}

// Restore replaces the contents with s. When s is longer than the capacity
// only its newest Cap() samples are kept.
func (b *Buffer) Restore(s Series) {
	b.Reset()
	ticks := s.Ticks()
	if over := len(ticks) - len(b.ring); over > 0 {
		ticks = ticks[over:]
	}
	for _, t := range ticks {
		b.Append(t)
	}
}

// Reset drops every tick.
func (b *Buffer) Reset() {
	clear(b.ring)
	b.head = 0
	b.n = 0
}
