package buffer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSnapshotLayout(t *testing.T) {
	s := FromTicks(createSequentialTicks(2))
	s.Prices[1] = decimal.RequireFromString("2500.15")

	data, err := MarshalSnapshot(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"labels": ["2023-11-14T22:13:20.000Z", "2023-11-14T22:14:20.000Z"],
		"datasets": [{"label": "Price", "data": [2500, 2500.15]}]
	}`, string(data))
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := FromTicks(createSequentialTicks(5))
	data, err := MarshalSnapshot(in)
	require.NoError(t, err)

	out, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())
	for i := range in.Len() {
		assert.True(t, in.Labels[i].Equal(out.Labels[i]))
		assert.True(t, in.Prices[i].Equal(out.Prices[i]))
	}
}

func TestUnmarshalBrowserSnapshot(t *testing.T) {
	// Written by the Chart.js widget: extra dataset styling, string prices allowed.
	data := []byte(`{
		"labels": ["2023-11-14T22:13:20.000Z"],
		"datasets": [{"label": "Price", "data": ["2500.15"], "borderWidth": 1, "fill": true}]
	}`)

	s, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, int64(1700000000000), s.Labels[0].UnixMilli())
	assert.True(t, s.Prices[0].Equal(decimal.RequireFromString("2500.15")))
}

func TestUnmarshalSnapshotCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"labels":`},
		{"no dataset", `{"labels":[],"datasets":[]}`},
		{"length mismatch", `{"labels":["2023-11-14T22:13:20.000Z"],"datasets":[{"data":[]}]}`},
		{"bad label", `{"labels":["yesterday"],"datasets":[{"data":[1]}]}`},
		{"bad price", `{"labels":["2023-11-14T22:13:20.000Z"],"datasets":[{"data":["abc"]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalSnapshot([]byte(tt.data))
			assert.True(t, errors.Is(err, ErrCorruptSnapshot), "got %v", err)
		})
	}
}
