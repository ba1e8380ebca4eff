// Package rpc serves the live chart over gRPC. The Server is a chart.Surface:
// every build and redraw is fanned out as a frame to each connected watcher.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/session"
)

// DefaultQueue is the per-watcher frame backlog before frames are dropped.
const DefaultQueue = 16

// Controller is the session as seen by the service. *session.Session
// satisfies it.
type Controller interface {
	Activate(ctx context.Context, sel selection.Selection) error
	Current() session.View
}

// Server implements ChartFeedServer and chart.Surface.
type Server struct {
	logger *slog.Logger
	queue  int

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	ctrl     Controller
	watchers map[string]chan Frame
}

// NewServer creates a Server with no controller attached; Select fails with
// Unavailable until Attach is called.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		queue:    DefaultQueue,
		done:     make(chan struct{}),
		watchers: make(map[string]chan Frame),
	}
}

// Close ends every open Watch stream and makes new ones return at once.
// grpc.Server.GracefulStop waits for in-flight streams, so call Close first.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Attach wires the session. The session is built with this Server as one of
// its surfaces, so it can only be attached afterwards.
func (s *Server) Attach(c Controller) {
	s.mu.Lock()
	s.ctrl = c
	s.mu.Unlock()
}

// Register adds the ChartFeed service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Watchers returns the number of connected watchers.
func (s *Server) Watchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// ── ChartFeedServer ─────────────────────────────────────────────────────────

func (s *Server) Select(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	sel := selection.New(fields["symbol"].GetStringValue(), fields["interval"].GetStringValue())
	if err := sel.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctrl := s.controller()
	if ctrl == nil {
		return nil, status.Error(codes.Unavailable, "session not ready")
	}
	if err := ctrl.Activate(ctx, sel); err != nil {
		switch {
		case errors.Is(err, session.ErrClosed):
			return nil, status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, status.FromContextError(err).Err()
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}
	s.logger.Info("selection changed via rpc", slog.String("selection", sel.String()))

	out, err := frameFromView(KindSnapshot, ctrl.Current()).Struct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	id := uuid.NewString()
	ch := make(chan Frame, s.queue)

	s.mu.Lock()
	s.watchers[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
		s.logger.Debug("watcher left", slog.String("watcher", id))
	}()
	s.logger.Debug("watcher joined", slog.String("watcher", id))

	if ctrl := s.controller(); ctrl != nil {
		if v := ctrl.Current(); v.Active {
			if err := send(stream, frameFromView(KindSnapshot, v)); err != nil {
				return err
			}
		}
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case f := <-ch:
			if err := send(stream, f); err != nil {
				return err
			}
		}
	}
}

func send(stream grpc.ServerStreamingServer[structpb.Struct], f Frame) error {
	msg, err := f.Struct()
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(msg)
}

// broadcast queues f for every watcher, dropping it for watchers whose queue
// is full.
func (s *Server) broadcast(f Frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.watchers {
		select {
		case ch <- f:
		default:
			s.logger.Debug("watcher lagging, frame dropped", slog.String("watcher", id))
		}
	}
}

// ── chart.Surface ───────────────────────────────────────────────────────────

func (s *Server) Build(spec chart.Spec) (chart.Chart, error) {
	c := &feedChart{srv: s, spec: spec}
	// The new stream is started right after the build.
	s.broadcast(c.frame(KindBuild, adapter.Connecting.String()))
	return c, nil
}

type feedChart struct {
	srv *Server

	mu        sync.Mutex
	spec      chart.Spec
	destroyed bool
}

func (c *feedChart) frame(kind, state string) Frame {
	return Frame{
		Kind:        kind,
		Selection:   c.spec.Selection,
		Granularity: c.spec.Granularity,
		State:       state,
		Series:      c.spec.Series,
	}
}

func (c *feedChart) Update(series buffer.Series) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.spec.Series = series
	c.mu.Unlock()

	state := adapter.Connected.String()
	if ctrl := c.srv.controller(); ctrl != nil {
		state = ctrl.Current().State.String()
	}
	c.mu.Lock()
	f := c.frame(KindUpdate, state)
	c.mu.Unlock()
	c.srv.broadcast(f)
	return nil
}

func (c *feedChart) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
}
