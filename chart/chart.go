// Package chart is the rendering boundary between the session and whatever
// draws the price line. A Surface builds a Chart for one selection; the Chart
// is redrawn without animation on every tick and destroyed on switch.
package chart

import (
	"errors"
	"fmt"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/model/selection"
)

// Spec is everything needed to (re)build a chart from scratch.
type Spec struct {
	Selection   selection.Selection
	Granularity selection.Granularity
	Series      buffer.Series
}

// NewSpec binds series to sel using the interval's axis granularity.
func NewSpec(sel selection.Selection, series buffer.Series) Spec {
	return Spec{
		Selection:   sel,
		Granularity: sel.Interval.Granularity(),
		Series:      series,
	}
}

// Surface creates charts.
type Surface interface {
	Build(spec Spec) (Chart, error)
}

// Chart is a live chart bound to one selection.
type Chart interface {
	// Update redraws with series, without animation.
	Update(series buffer.Series) error
	// Destroy releases the chart. Update after Destroy is a no-op.
	Destroy()
}

// Multi fans every build and update out to each surface in order.
func Multi(surfaces ...Surface) Surface {
	return multiSurface(surfaces)
}

type multiSurface []Surface

func (m multiSurface) Build(spec Spec) (Chart, error) {
	charts := make(multiChart, 0, len(m))
	for i, s := range m {
		c, err := s.Build(spec)
		if err != nil {
			charts.Destroy()
			return nil, fmt.Errorf("chart: surface %d: %w", i, err)
		}
		charts = append(charts, c)
	}
	return charts, nil
}

type multiChart []Chart

func (m multiChart) Update(series buffer.Series) error {
	var errs []error
	for _, c := range m {
		if err := c.Update(series); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiChart) Destroy() {
	for _, c := range m {
		c.Destroy()
	}
}
