package rpc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/session"
)

// Frame kinds.
const (
	KindSnapshot = "snapshot"
	KindBuild    = "build"
	KindUpdate   = "update"
)

// Frame is one full chart state. Every frame stands alone, so a viewer that
// misses frames only misses intermediate redraws.
type Frame struct {
	Kind        string
	Selection   selection.Selection
	Granularity selection.Granularity
	State       string
	Series      buffer.Series
}

func frameFromView(kind string, v session.View) Frame {
	return Frame{
		Kind:        kind,
		Selection:   v.Selection,
		Granularity: v.Granularity,
		State:       v.State.String(),
		Series:      v.Series,
	}
}

// Struct encodes f as a google.protobuf.Struct.
func (f Frame) Struct() (*structpb.Struct, error) {
	n := min(len(f.Series.Labels), len(f.Series.Prices))
	times := make([]any, n)
	prices := make([]any, n)
	for i := range n {
		times[i] = float64(f.Series.Labels[i].UnixMilli())
		prices[i] = f.Series.Prices[i].String()
	}
	s, err := structpb.NewStruct(map[string]any{
		"kind":     f.Kind,
		"symbol":   f.Selection.Symbol,
		"interval": string(f.Selection.Interval),
		"unit":     string(f.Granularity.Unit),
		"step":     float64(f.Granularity.Step),
		"state":    f.State,
		"times":    times,
		"prices":   prices,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc: encode frame: %w", err)
	}
	return s, nil
}

// FrameFromStruct decodes a frame produced by Frame.Struct.
func FrameFromStruct(s *structpb.Struct) (Frame, error) {
	fields := s.GetFields()
	f := Frame{
		Kind:      fields["kind"].GetStringValue(),
		Selection: selection.New(fields["symbol"].GetStringValue(), fields["interval"].GetStringValue()),
		Granularity: selection.Granularity{
			Unit: selection.Unit(fields["unit"].GetStringValue()),
			Step: int(fields["step"].GetNumberValue()),
		},
		State: fields["state"].GetStringValue(),
	}

	times := fields["times"].GetListValue().GetValues()
	prices := fields["prices"].GetListValue().GetValues()
	if len(times) != len(prices) {
		return Frame{}, fmt.Errorf("rpc: frame has %d times and %d prices", len(times), len(prices))
	}
	f.Series = buffer.Series{
		Labels: make([]time.Time, len(times)),
		Prices: make([]decimal.Decimal, len(prices)),
	}
	for i := range times {
		f.Series.Labels[i] = time.UnixMilli(int64(times[i].GetNumberValue())).UTC()
		p, err := decimal.NewFromString(prices[i].GetStringValue())
		if err != nil {
			return Frame{}, fmt.Errorf("rpc: frame price[%d]: %w", i, err)
		}
		f.Series.Prices[i] = p
	}
	return f, nil
}
