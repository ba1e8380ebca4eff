package buffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCorruptSnapshot marks a persisted snapshot that cannot be restored.
var ErrCorruptSnapshot = errors.New("buffer: corrupt snapshot")

const (
	snapshotLabel      = "Price"
	snapshotTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// snapshot mirrors the Chart.js data object the browser widget kept in
// localStorage, so snapshots written by either side stay readable.
type snapshot struct {
	Labels   []string          `json:"labels"`
	Datasets []snapshotDataset `json:"datasets"`
}

type snapshotDataset struct {
	Label string            `json:"label"`
	Data  []json.RawMessage `json:"data"`
}

// MarshalSnapshot encodes s in the Chart.js data layout:
//
//	{"labels":["2023-11-14T22:13:20.000Z"],"datasets":[{"label":"Price","data":[2500.15]}]}
func MarshalSnapshot(s Series) ([]byte, error) {
	n := min(len(s.Labels), len(s.Prices))
	out := snapshot{
		Labels:   make([]string, n),
		Datasets: []snapshotDataset{{Label: snapshotLabel, Data: make([]json.RawMessage, n)}},
	}
	for i := range n {
		out.Labels[i] = s.Labels[i].UTC().Format(snapshotTimeLayout)
		out.Datasets[0].Data[i] = json.RawMessage(s.Prices[i].String())
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("buffer: marshal snapshot: %w", err)
	}
	return b, nil
}

// UnmarshalSnapshot decodes a snapshot written by MarshalSnapshot or by the
// browser widget. Prices may be JSON numbers or numeric strings.
func UnmarshalSnapshot(data []byte) (Series, error) {
	var in snapshot
	if err := json.Unmarshal(data, &in); err != nil {
		return Series{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if len(in.Datasets) == 0 {
		return Series{}, fmt.Errorf("%w: no dataset", ErrCorruptSnapshot)
	}
	prices := in.Datasets[0].Data
	if len(prices) != len(in.Labels) {
		return Series{}, fmt.Errorf("%w: %d labels, %d prices", ErrCorruptSnapshot, len(in.Labels), len(prices))
	}

	s := Series{
		Labels: make([]time.Time, len(in.Labels)),
		Prices: make([]decimal.Decimal, len(prices)),
	}
	for i, l := range in.Labels {
		ts, err := time.Parse(time.RFC3339Nano, l)
		if err != nil {
			return Series{}, fmt.Errorf("%w: label[%d]: %v", ErrCorruptSnapshot, i, err)
		}
		s.Labels[i] = ts.UTC()

		if err := s.Prices[i].UnmarshalJSON(prices[i]); err != nil {
			return Series{}, fmt.Errorf("%w: data[%d]: %v", ErrCorruptSnapshot, i, err)
		}
	}
	return s, nil
}
