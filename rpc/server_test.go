package rpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
	"github.com/yitech/pricechart/session"
)

type fakeController struct {
	mu       sync.Mutex
	view     session.View
	selected []selection.Selection
	err      error
}

func (c *fakeController) Activate(_ context.Context, sel selection.Selection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.selected = append(c.selected, sel)
	c.view = session.View{
		Active:      true,
		Selection:   sel,
		Granularity: sel.Interval.Granularity(),
		State:       adapter.Connected,
	}
	return nil
}

func (c *fakeController) Current() session.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func sampleSeries() buffer.Series {
	return buffer.FromTicks([]tick.Tick{
		tick.New(1700000000000, decimal.RequireFromString("2500.15")),
		tick.New(1700000060000, decimal.RequireFromString("2501")),
	})
}

func startServer(t *testing.T, srv *Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	srv.Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func watch(t *testing.T, c *Client) (<-chan Frame, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan Frame, 16)
	go func() { _ = c.Watch(ctx, func(f Frame) { frames <- f }) }()
	t.Cleanup(cancel)
	return frames, cancel
}

func nextFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func waitWatchers(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Watchers() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestFrameStructRoundTrip(t *testing.T) {
	sel := selection.New("btcusdt", "4h")
	in := Frame{
		Kind:        KindUpdate,
		Selection:   sel,
		Granularity: sel.Interval.Granularity(),
		State:       "connected",
		Series:      sampleSeries(),
	}
	s, err := in.Struct()
	require.NoError(t, err)
	assert.Equal(t, "2500.15", s.GetFields()["prices"].GetListValue().GetValues()[0].GetStringValue())

	out, err := FrameFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Selection, out.Selection)
	assert.Equal(t, in.Granularity, out.Granularity)
	assert.Equal(t, in.State, out.State)
	require.Equal(t, 2, out.Series.Len())
	assert.True(t, out.Series.Labels[1].Equal(in.Series.Labels[1]))
	assert.True(t, out.Series.Prices[0].Equal(in.Series.Prices[0]))
}

func TestWatchReceivesSnapshotThenRedraws(t *testing.T) {
	ctrl := &fakeController{}
	require.NoError(t, ctrl.Activate(context.Background(), selection.Default()))
	srv := NewServer(nil)
	srv.Attach(ctrl)
	client := startServer(t, srv)

	frames, _ := watch(t, client)
	first := nextFrame(t, frames)
	assert.Equal(t, KindSnapshot, first.Kind)
	assert.Equal(t, selection.Default(), first.Selection)
	assert.Equal(t, "connected", first.State)

	sel := selection.New("ethusdt", "1h")
	c, err := srv.Build(chart.NewSpec(sel, buffer.Series{}))
	require.NoError(t, err)
	built := nextFrame(t, frames)
	assert.Equal(t, KindBuild, built.Kind)
	assert.Equal(t, sel, built.Selection)
	assert.Equal(t, selection.UnitHour, built.Granularity.Unit)
	assert.Equal(t, "connecting", built.State)

	require.NoError(t, c.Update(sampleSeries()))
	upd := nextFrame(t, frames)
	assert.Equal(t, KindUpdate, upd.Kind)
	assert.Equal(t, 2, upd.Series.Len())

	c.Destroy()
	require.NoError(t, c.Update(sampleSeries()))
	select {
	case f := <-frames:
		t.Fatalf("destroyed chart sent %s frame", f.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchWithoutActiveSession(t *testing.T) {
	srv := NewServer(nil)
	client := startServer(t, srv)
	frames, cancel := watch(t, client)
	waitWatchers(t, srv, 1)

	_, err := srv.Build(chart.NewSpec(selection.Default(), sampleSeries()))
	require.NoError(t, err)
	assert.Equal(t, KindBuild, nextFrame(t, frames).Kind)

	cancel()
	waitWatchers(t, srv, 0)
}

func TestSlowWatcherDoesNotBlockRedraws(t *testing.T) {
	srv := NewServer(nil)
	srv.queue = 1
	// A watcher registered directly with nobody draining its queue.
	srv.watchers["stuck"] = make(chan Frame, srv.queue)

	c, err := srv.Build(chart.NewSpec(selection.Default(), buffer.Series{}))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for range 10 {
			_ = c.Update(sampleSeries())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("redraws blocked on a full watcher queue")
	}
}

func TestCloseLetsGracefulStopFinish(t *testing.T) {
	srv := NewServer(nil)
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	srv.Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- NewClient(conn).Watch(context.Background(), func(Frame) {})
	}()
	waitWatchers(t, srv, 1)

	stopped := make(chan struct{})
	go func() {
		srv.Close()
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("GracefulStop blocked by a connected watcher")
	}

	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Close")
	}
	assert.Equal(t, 0, srv.Watchers())

	srv.Close()
}

func TestWatchAfterCloseReturns(t *testing.T) {
	srv := NewServer(nil)
	client := startServer(t, srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, client.Watch(ctx, func(Frame) {}))
}

func TestSelect(t *testing.T) {
	ctrl := &fakeController{}
	srv := NewServer(nil)
	srv.Attach(ctrl)
	client := startServer(t, srv)

	f, err := client.Select(context.Background(), selection.New("BTCUSDT", "15m"))
	require.NoError(t, err)
	assert.Equal(t, KindSnapshot, f.Kind)
	assert.Equal(t, selection.New("btcusdt", "15m"), f.Selection)
	assert.Equal(t, []selection.Selection{selection.New("btcusdt", "15m")}, ctrl.selected)
}

func TestSelectErrors(t *testing.T) {
	tests := []struct {
		name string
		ctrl Controller
		sel  selection.Selection
		code codes.Code
	}{
		{"invalid symbol", &fakeController{}, selection.New("eth/usdt", "1m"), codes.InvalidArgument},
		{"empty interval", &fakeController{}, selection.New("ethusdt", ""), codes.InvalidArgument},
		{"no session", nil, selection.Default(), codes.Unavailable},
		{"session closed", &fakeController{err: session.ErrClosed}, selection.Default(), codes.Unavailable},
		{"build failure", &fakeController{err: errors.New("boom")}, selection.Default(), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(nil)
			if tt.ctrl != nil {
				srv.Attach(tt.ctrl)
			}
			client := startServer(t, srv)

			_, err := client.Select(context.Background(), tt.sel)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}
