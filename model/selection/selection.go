// Package selection defines the (symbol, interval) pair that drives the
// stream and the chart, and the fixed interval → time-axis table.
package selection

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is returned by Validate for a selection that cannot address a stream.
var ErrInvalid = errors.New("selection: invalid")

const (
	DefaultSymbol   = "ethusdt"
	DefaultInterval = Interval1m
)

// Interval is a kline bar duration in Binance notation.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
)

// Intervals lists the supported intervals, shortest first.
var Intervals = []Interval{
	Interval1m, Interval3m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h,
}

// Unit is the time-axis bucket unit.
type Unit string

const (
	UnitMinute Unit = "minute"
	UnitHour   Unit = "hour"
)

// Granularity is the time-axis bucket: Step units per labelled tick.
type Granularity struct {
	Unit Unit
	Step int
}

// Duration is the length of one axis step.
func (g Granularity) Duration() time.Duration {
	unit := time.Minute
	if g.Unit == UnitHour {
		unit = time.Hour
	}
	step := g.Step
	if step < 1 {
		step = 1
	}
	return time.Duration(step) * unit
}

func (g Granularity) String() string {
	return fmt.Sprintf("%s/%d", g.Unit, g.Step)
}

var granularities = map[Interval]Granularity{
	Interval1m:  {UnitMinute, 1},
	Interval3m:  {UnitMinute, 3},
	Interval5m:  {UnitMinute, 5},
	Interval15m: {UnitMinute, 15},
	Interval30m: {UnitMinute, 30},
	Interval1h:  {UnitHour, 1},
	Interval4h:  {UnitHour, 4},
}

// Granularity maps the interval to its axis bucket. Unrecognised intervals
// fall back to one-minute buckets.
func (i Interval) Granularity() Granularity {
	if g, ok := granularities[i]; ok {
		return g
	}
	return Granularity{UnitMinute, 1}
}

// Known reports whether i is one of Intervals.
func (i Interval) Known() bool {
	_, ok := granularities[i]
	return ok
}

// Duration is the bar length; unknown intervals count as one minute.
func (i Interval) Duration() time.Duration {
	if !i.Known() {
		return time.Minute
	}
	d, err := time.ParseDuration(string(i))
	if err != nil {
		return time.Minute
	}
	return d
}

// Selection is the pair currently driving the stream and the chart.
type Selection struct {
	Symbol   string
	Interval Interval
}

// New normalises symbol to the lowercase form used in stream names.
func New(symbol, interval string) Selection {
	return Selection{
		Symbol:   strings.ToLower(strings.TrimSpace(symbol)),
		Interval: Interval(strings.TrimSpace(interval)),
	}
}

// Default is the selection used when nothing has been persisted.
func Default() Selection {
	return Selection{Symbol: DefaultSymbol, Interval: DefaultInterval}
}

// Validate rejects selections that cannot address a stream. An unknown but
// well-formed interval such as "2h" is accepted; Granularity handles it.
func (s Selection) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalid)
	}
	if !alnum(s.Symbol) {
		return fmt.Errorf("%w: symbol %q", ErrInvalid, s.Symbol)
	}
	if s.Interval == "" {
		return fmt.Errorf("%w: empty interval", ErrInvalid)
	}
	if !alnum(string(s.Interval)) {
		return fmt.Errorf("%w: interval %q", ErrInvalid, s.Interval)
	}
	return nil
}

// alnum reports whether s is made of [a-z0-9] only. Both halves of a
// selection end up in stream paths and subscription topics.
func alnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// SnapshotKey is the persistence key of the buffer snapshot for s.
func (s Selection) SnapshotKey() string {
	return s.Symbol + "_" + string(s.Interval) + "_data"
}

func (s Selection) String() string {
	return s.Symbol + "@" + string(s.Interval)
}
