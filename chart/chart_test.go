package chart

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/model/selection"
)

type recordingSurface struct {
	built  []Spec
	fail   error
	charts []*recordingChart
}

func (s *recordingSurface) Build(spec Spec) (Chart, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.built = append(s.built, spec)
	c := &recordingChart{}
	s.charts = append(s.charts, c)
	return c, nil
}

type recordingChart struct {
	updates   int
	destroyed bool
	fail      error
}

func (c *recordingChart) Update(buffer.Series) error {
	c.updates++
	return c.fail
}

func (c *recordingChart) Destroy() { c.destroyed = true }

func TestNewSpecUsesIntervalGranularity(t *testing.T) {
	spec := NewSpec(selection.New("btcusdt", "4h"), buffer.Series{})
	assert.Equal(t, selection.Granularity{Unit: selection.UnitHour, Step: 4}, spec.Granularity)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSurface{}, &recordingSurface{}
	c, err := Multi(a, b).Build(NewSpec(selection.Default(), buffer.Series{}))
	require.NoError(t, err)
	require.Len(t, a.built, 1)
	require.Len(t, b.built, 1)

	require.NoError(t, c.Update(buffer.Series{}))
	assert.Equal(t, 1, a.charts[0].updates)
	assert.Equal(t, 1, b.charts[0].updates)

	c.Destroy()
	assert.True(t, a.charts[0].destroyed)
	assert.True(t, b.charts[0].destroyed)
}

func TestMultiBuildFailureDestroysPartialCharts(t *testing.T) {
	a := &recordingSurface{}
	boom := errors.New("boom")
	_, err := Multi(a, &recordingSurface{fail: boom}).Build(NewSpec(selection.Default(), buffer.Series{}))
	assert.ErrorIs(t, err, boom)
	require.Len(t, a.charts, 1)
	assert.True(t, a.charts[0].destroyed)
}

func TestMultiUpdateJoinsErrors(t *testing.T) {
	a, b := &recordingSurface{}, &recordingSurface{}
	c, err := Multi(a, b).Build(NewSpec(selection.Default(), buffer.Series{}))
	require.NoError(t, err)

	boom := errors.New("boom")
	a.charts[0].fail = boom
	assert.ErrorIs(t, c.Update(buffer.Series{}), boom)
	assert.Equal(t, 1, b.charts[0].updates, "a failing surface must not starve the others")
}
