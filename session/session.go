// Package session owns the live chart for one selection at a time: the
// rolling buffer, the stream feeding it and the chart drawing it.
//
// Every tick and every activation is handled on a single event loop (Run),
// strictly in arrival order. An activation tears the previous selection down
// completely before anything for the new one starts, and ticks still in
// flight from a superseded stream are discarded by generation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/metrics"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

// ErrClosed is returned by Activate once Run has exited.
var ErrClosed = errors.New("session: closed")

const (
	eventQueue   = 256
	storeTimeout = 5 * time.Second
	fetchTimeout = 15 * time.Second
)

// Feed is a market-data stream for one selection at a time.
// *adapter.Stream satisfies it.
type Feed interface {
	Start(ctx context.Context, sel selection.Selection)
	Stop()
	OnTick(h adapter.TickHandler) adapter.Token
	State() adapter.State
}

// FeedFactory returns a new, stopped Feed. One is created per activation.
type FeedFactory func() Feed

// Prefs persists the selection and per-selection snapshots.
// *store.Prefs satisfies it.
type Prefs interface {
	SaveSelection(ctx context.Context, sel selection.Selection) error
	LoadSnapshot(ctx context.Context, sel selection.Selection) (buffer.Series, bool)
	SaveSnapshot(ctx context.Context, sel selection.Selection, series buffer.Series) error
}

// View is a point-in-time copy of the session for readers outside the loop.
// Series must not be modified.
type View struct {
	Active      bool
	Selection   selection.Selection
	Granularity selection.Granularity
	Series      buffer.Series
	State       adapter.State
}

type Option func(*Session)

// WithCapacity sets the rolling window size.
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// WithSnapshotEvery saves the window every n ticks in addition to saving on
// switch and shutdown. 0 disables periodic saves.
func WithSnapshotEvery(n int) Option {
	return func(s *Session) { s.snapshotEvery = max(n, 0) }
}

// WithBackfill seeds a window that has no snapshot from b's REST history.
func WithBackfill(b adapter.Backfiller) Option {
	return func(s *Session) { s.backfill = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is the ChartSession. Create with New, drive with Run.
type Session struct {
	factory       FeedFactory
	surface       chart.Surface
	prefs         Prefs
	capacity      int
	snapshotEvery int
	backfill      adapter.Backfiller
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	events  chan any
	done    chan struct{}
	runOnce sync.Once

	// Loop-owned.
	gen uint64
	cur *activation

	mu   sync.RWMutex
	view View
	feed Feed
}

type activation struct {
	gen    uint64
	sel    selection.Selection
	buf    *buffer.Buffer
	chart  chart.Chart
	feed   Feed
	token  adapter.Token
	cancel context.CancelFunc
	ticks  int // since last snapshot
}

type tickEvent struct {
	gen uint64
	t   tick.Tick
}

type activateEvent struct {
	sel    selection.Selection
	result chan error
}

// New creates an idle session; nothing is streamed until Activate.
func New(factory FeedFactory, surface chart.Surface, prefs Prefs, opts ...Option) *Session {
	s := &Session{
		factory:  factory,
		surface:  surface,
		prefs:    prefs,
		capacity: buffer.DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
		events:   make(chan any, eventQueue),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes events until ctx is cancelled, then tears the current
// selection down. Run must be called once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session: Run called twice")
	}
	defer close(s.done)
	defer s.teardown(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			switch ev := ev.(type) {
			case tickEvent:
				s.handleTick(ctx, ev)
			case activateEvent:
				ev.result <- s.activate(ctx, ev.sel)
			}
		}
	}
}

// Activate switches the session to sel and returns once the switch has been
// applied by the loop. Activating the current selection rebuilds it.
func (s *Session) Activate(ctx context.Context, sel selection.Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	ev := activateEvent{sel: sel, result: make(chan error, 1)}
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.result:
		return err
	case <-s.done:
		select {
		case err := <-ev.result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns a copy of the session's visible state.
func (s *Session) Current() View {
	s.mu.RLock()
	v, f := s.view, s.feed
	s.mu.RUnlock()
	v.State = adapter.Disconnected
	if f != nil {
		v.State = f.State()
	}
	return v
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// ── loop ─────────────────────────────────────────────────────────────────────

func (s *Session) activate(ctx context.Context, sel selection.Selection) error {
	s.metrics.Activation()
	log := s.logger.With(
		slog.String("symbol", sel.Symbol),
		slog.String("interval", string(sel.Interval)),
	)
	if !sel.Interval.Known() {
		log.Warn("unknown interval, using one-minute axis")
	}

	// Tear down the previous selection; its chart lives until the new one
	// is ready to be built.
	var prevChart chart.Chart
	if s.cur != nil {
		prevChart = s.stopCurrent(ctx)
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	if err := s.prefs.SaveSelection(sctx, sel); err != nil {
		log.Warn("persist selection failed", slog.Any("error", err))
	}

	buf := buffer.New(s.capacity)
	if series, ok := s.prefs.LoadSnapshot(sctx, sel); ok {
		buf.Restore(series)
		log.Debug("restored snapshot", slog.Int("samples", buf.Len()))
	} else if s.backfill != nil {
		s.seed(ctx, sel, buf, log)
	}
	cancel()

	if prevChart != nil {
		prevChart.Destroy()
	}
	c, buildErr := s.surface.Build(chart.NewSpec(sel, buf.Series()))
	if buildErr != nil {
		log.Error("chart build failed", slog.Any("error", buildErr))
		c = nil
	} else {
		s.metrics.Redraw("build")
	}

	s.gen++
	gen := s.gen
	gctx, gcancel := context.WithCancel(ctx)
	feed := s.factory()
	token := feed.OnTick(func(t tick.Tick) {
		select {
		case s.events <- tickEvent{gen: gen, t: t}:
		case <-gctx.Done():
		}
	})
	feed.Start(gctx, sel)

	s.cur = &activation{
		gen:    gen,
		sel:    sel,
		buf:    buf,
		chart:  c,
		feed:   feed,
		token:  token,
		cancel: gcancel,
	}
	s.publish(buf.Series(), feed)
	log.Info("selection activated", slog.Int("samples", buf.Len()))

	if buildErr != nil {
		return fmt.Errorf("session: build chart: %w", buildErr)
	}
	return nil
}

func (s *Session) seed(ctx context.Context, sel selection.Selection, buf *buffer.Buffer, log *slog.Logger) {
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	end := s.now()
	start := end.Add(-time.Duration(buf.Cap()) * sel.Interval.Duration())
	ticks, err := s.backfill.Backfill(fctx, sel, start, end)
	if err != nil {
		log.Warn("backfill failed", slog.Any("error", err))
		return
	}
	buf.Restore(buffer.FromTicks(ticks))
	log.Debug("backfilled", slog.Int("samples", buf.Len()))
}

func (s *Session) handleTick(ctx context.Context, ev tickEvent) {
	a := s.cur
	if a == nil || ev.gen != a.gen {
		return
	}
	a.buf.Append(ev.t)
	series := a.buf.Series()

	if a.chart != nil {
		if err := a.chart.Update(series); err != nil {
			s.logger.Warn("chart update failed", slog.Any("error", err))
		} else {
			s.metrics.Redraw("update")
		}
	}
	s.publish(series, a.feed)

	a.ticks++
	if s.snapshotEvery > 0 && a.ticks >= s.snapshotEvery {
		a.ticks = 0
		s.saveSnapshot(ctx, a.sel, series)
	}
}

// stopCurrent stops the current feed synchronously and saves its window.
// It returns the chart, which the caller destroys.
func (s *Session) stopCurrent(ctx context.Context) chart.Chart {
	a := s.cur
	s.cur = nil

	a.cancel()
	a.token.Unsubscribe()
	a.feed.Stop()
	s.saveSnapshot(ctx, a.sel, a.buf.Series())
	return a.chart
}

func (s *Session) teardown(ctx context.Context) {
	if s.cur == nil {
		return
	}
	if c := s.stopCurrent(ctx); c != nil {
		c.Destroy()
	}
	s.mu.Lock()
	s.view.Active = false
	s.feed = nil
	s.mu.Unlock()
}

func (s *Session) saveSnapshot(ctx context.Context, sel selection.Selection, series buffer.Series) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.prefs.SaveSnapshot(ctx, sel, series); err != nil {
		s.logger.Warn("save snapshot failed",
			slog.String("symbol", sel.Symbol),
			slog.String("interval", string(sel.Interval)),
			slog.Any("error", err),
		)
	}
}

func (s *Session) publish(series buffer.Series, feed Feed) {
	a := s.cur
	s.mu.Lock()
	s.view = View{
		Active:      true,
		Selection:   a.sel,
		Granularity: a.sel.Interval.Granularity(),
		Series:      series,
	}
	s.feed = feed
	s.mu.Unlock()
}
