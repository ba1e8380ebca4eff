// Package png renders the price line to PNG with go-chart.
package png

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/model/selection"
)

// ErrNoData is returned by Render for an empty series; there is no line to draw.
var ErrNoData = errors.New("png: no data")

const (
	DefaultWidth  = 1024
	DefaultHeight = 512

	// maxTicks caps the number of x axis labels; extra boundaries are skipped.
	maxTicks    = 20
	labelLayout = "Jan 2, 3:04 PM"
)

// Options controls the image size and the zone labels are printed in.
type Options struct {
	Width    int
	Height   int
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Render draws spec as a line chart to w.
func Render(w io.Writer, spec chart.Spec, opts Options) error {
	opts = opts.withDefaults()
	s := spec.Series
	n := min(len(s.Labels), len(s.Prices))
	if n == 0 {
		return ErrNoData
	}

	ys := make([]float64, n)
	for i := range n {
		ys[i] = s.Prices[i].InexactFloat64()
	}
	xs := s.Labels[:n]

	ticks := axisTicks(xs, spec.Granularity, opts.Location)
	lo, hi := priceRange(ys)

	ch := gochart.Chart{
		Title:      spec.Selection.String(),
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis: gochart.XAxis{
			Ticks: ticks,
			Range: &gochart.ContinuousRange{
				Min: math.Min(ticks[0].Value, gochart.TimeToFloat64(xs[0])),
				Max: math.Max(ticks[len(ticks)-1].Value, gochart.TimeToFloat64(xs[n-1])),
			},
		},
		YAxis: gochart.YAxis{
			Range:          &gochart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: priceFormatter(hi - lo),
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    "Price",
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: gochart.ColorBlue,
					StrokeWidth: 2,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := ch.Render(gochart.PNG, &buf); err != nil {
		return fmt.Errorf("png: render %s: %w", spec.Selection, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// axisTicks places a label on every unit×step boundary inside the span of
// xs, thinning them to at most maxTicks. At least two ticks are returned so
// a single sample still gets a non-zero axis.
func axisTicks(xs []time.Time, g selection.Granularity, loc *time.Location) []gochart.Tick {
	step := g.Duration()
	first, last := xs[0], xs[0]
	for _, t := range xs[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}

	start := first.Truncate(step)
	if start.Before(first) {
		start = start.Add(step)
	}
	var bounds []time.Time
	for t := start; !t.After(last); t = t.Add(step) {
		bounds = append(bounds, t)
	}
	if len(bounds) < 2 {
		start = first.Truncate(step)
		bounds = []time.Time{start, start.Add(step)}
	}

	skip := (len(bounds) + maxTicks - 1) / maxTicks
	ticks := make([]gochart.Tick, 0, maxTicks)
	for i, t := range bounds {
		if i%skip != 0 {
			continue
		}
		ticks = append(ticks, gochart.Tick{
			Value: gochart.TimeToFloat64(t),
			Label: t.In(loc).Format(labelLayout),
		})
	}
	return ticks
}

// priceRange pads the data span so the line never touches the frame. The
// axis follows the data; it is not anchored at zero.
func priceRange(ys []float64) (lo, hi float64) {
	lo, hi = ys[0], ys[0]
	for _, y := range ys[1:] {
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Abs(hi) * 0.01
	}
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}

// priceFormatter picks enough decimals to tell neighbouring y ticks apart.
func priceFormatter(span float64) gochart.ValueFormatter {
	prec := 0
	if span > 0 {
		prec = int(math.Ceil(-math.Log10(span / 5)))
	}
	prec = min(max(prec, 0), 8)
	return func(v any) string {
		f, ok := v.(float64)
		if !ok {
			return ""
		}
		return fmt.Sprintf("%.*f", prec, f)
	}
}
