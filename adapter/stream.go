package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yitech/pricechart/metrics"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

// State is the connection state of a Stream.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Backoff bounds the delay between reconnect attempts. The delay doubles
// after each failed attempt up to Max and resets once a connection is up.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff matches the exchange adapters' historical 1s → 30s schedule.
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second}

const closeWait = time.Second

// Option configures a Stream.
type Option func(*Stream)

func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(s *Stream) {
		if b.Initial <= 0 {
			b.Initial = DefaultBackoff.Initial
		}
		if b.Max < b.Initial {
			b.Max = b.Initial
		}
		s.backoff = b
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Stream) {
		if d != nil {
			s.dialer = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// Stream keeps one websocket connection open to an exchange's kline stream
// for a single selection, emitting a tick per parsed message and
// reconnecting with backoff whenever the remote end goes away.
type Stream struct {
	ex      Exchange
	dialer  *websocket.Dialer
	backoff Backoff
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	sel    selection.Selection
	cancel context.CancelFunc
	done   chan struct{}

	hmu      sync.RWMutex
	handlers map[uint64]TickHandler
	nextID   uint64
}

// handlerToken cancels a single OnTick registration.
type handlerToken struct {
	id     uint64
	stream *Stream
	once   sync.Once
}

func (t *handlerToken) Unsubscribe() {
	t.once.Do(func() {
		t.stream.hmu.Lock()
		delete(t.stream.handlers, t.id)
		t.stream.hmu.Unlock()
	})
}

// NewStream creates a stopped Stream for ex.
func NewStream(ex Exchange, opts ...Option) *Stream {
	s := &Stream{
		ex:       ex,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		backoff:  DefaultBackoff,
		logger:   slog.Default(),
		handlers: make(map[uint64]TickHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the stream for sel in the background. Connection errors
// are never returned; they feed the reconnect loop. Starting a running
// Stream stops the current connection first.
func (s *Stream) Start(ctx context.Context, sel selection.Selection) {
	s.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.sel = sel
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, sel, done)
}

// Stop closes the connection and waits for the read loop to exit. No
// handler runs and no reconnect is attempted after Stop returns.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.setState(Stopped)
}

// OnTick registers h for every parsed tick until the Token is unsubscribed.
func (s *Stream) OnTick(h TickHandler) Token {
	s.hmu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.hmu.Unlock()
	return &handlerToken{id: id, stream: s}
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Selection() selection.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// Exchange returns the dialect this Stream speaks.
func (s *Stream) Exchange() Exchange { return s.ex }

// ── internal ─────────────────────────────────────────────────────────────────

func (s *Stream) run(ctx context.Context, sel selection.Selection, done chan struct{}) {
	defer close(done)

	name := s.ex.Name()
	log := s.logger.With(
		slog.String("exchange", name),
		slog.String("symbol", sel.Symbol),
		slog.String("interval", string(sel.Interval)),
	)

	delay := s.backoff.Initial
	for {
		connected, err := s.connectAndRead(ctx, sel, log)
		if ctx.Err() != nil {
			return
		}
		s.setState(Disconnected)
		if connected {
			delay = s.backoff.Initial
		}

		log.Warn("stream closed, reconnecting",
			slog.Any("error", err),
			slog.Duration("backoff", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = min(delay*2, s.backoff.Max)
		s.metrics.Reconnect(name)
	}
}

// connectAndRead maintains a single session until the context is cancelled
// or the connection fails. connected reports whether the handshake succeeded.
func (s *Stream) connectAndRead(ctx context.Context, sel selection.Selection, log *slog.Logger) (connected bool, err error) {
	s.setState(Connecting)

	conn, _, err := s.dialer.DialContext(ctx, s.ex.StreamURL(sel), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context is cancelled.
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWait))
			conn.Close()
		case <-closed:
		}
	}()

	if err := s.ex.Subscribe(conn, sel); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	s.setState(Connected)
	log.Info("stream connected")

	// gorilla allows one concurrent writer; heartbeats and replies share it.
	var wmu sync.Mutex
	if p, ok := s.ex.(Pinger); ok && p.PingInterval() > 0 {
		go heartbeat(conn, &wmu, p, closed)
	}
	responder, _ := s.ex.(Responder)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil // clean shutdown
			}
			return true, fmt.Errorf("read: %w", err)
		}

		if responder != nil {
			if reply, ok := responder.Respond(msg); ok {
				wmu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, reply)
				wmu.Unlock()
				if err != nil {
					return true, fmt.Errorf("reply: %w", err)
				}
				continue
			}
		}

		ticks, err := s.ex.Parse(msg)
		if err != nil {
			s.metrics.Dropped(s.ex.Name())
			log.Debug("dropping message", slog.Any("error", err))
			continue
		}
		for _, t := range ticks {
			s.metrics.Tick(s.ex.Name())
			s.emit(ctx, t)
		}
	}
}

func heartbeat(conn *websocket.Conn, wmu *sync.Mutex, p Pinger, closed <-chan struct{}) {
	ticker := time.NewTicker(p.PingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			wmu.Lock()
			err := conn.WriteJSON(p.PingFrame())
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Stream) emit(ctx context.Context, t tick.Tick) {
	s.hmu.RLock()
	hs := make([]TickHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.hmu.RUnlock()

	for _, h := range hs {
		if ctx.Err() != nil {
			return
		}
		h(t)
	}
}

func (s *Stream) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed {
		s.metrics.State(s.ex.Name(), int(state))
	}
}
