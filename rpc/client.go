package rpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/pricechart/model/selection"
)

// Client calls a remote ChartFeed.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Select asks the server to switch to sel and returns the resulting frame.
func (c *Client) Select(ctx context.Context, sel selection.Selection, opts ...grpc.CallOption) (Frame, error) {
	req, err := structpb.NewStruct(map[string]any{
		"symbol":   sel.Symbol,
		"interval": string(sel.Interval),
	})
	if err != nil {
		return Frame{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, selectMethod, req, out, opts...); err != nil {
		return Frame{}, err
	}
	return FrameFromStruct(out)
}

// Watch calls fn for every frame until the stream ends or ctx is cancelled.
// A clean end of stream returns nil.
func (c *Client) Watch(ctx context.Context, fn func(Frame), opts ...grpc.CallOption) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := x.CloseSend(); err != nil {
		return err
	}

	for {
		msg, err := x.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		f, err := FrameFromStruct(msg)
		if err != nil {
			return err
		}
		fn(f)
	}
}
