package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/model/tick"
)

// ErrMalformed marks a stream message that carries no usable tick.
var ErrMalformed = errors.New("malformed message")

// TickHandler receives every tick parsed from the stream.
type TickHandler func(tick.Tick)

// Token cancels a handler registration or subscription.
type Token interface {
	Unsubscribe()
}

// Exchange describes one venue's kline stream dialect. The Stream owns the
// connection; an Exchange only knows where to dial, what to send after the
// handshake and how to read a frame.
type Exchange interface {
	// Name is the lowercase venue name used in logs and metrics.
	Name() string

	// StreamURL returns the websocket endpoint for sel.
	StreamURL(sel selection.Selection) string

	// Subscribe writes whatever frames the venue needs after dialing.
	Subscribe(conn *websocket.Conn, sel selection.Selection) error

	// Parse converts one inbound frame into ticks. Control frames
	// (acks, pongs) return nil, nil; unusable frames return ErrMalformed.
	Parse(msg []byte) ([]tick.Tick, error)
}

// Responder is implemented by exchanges that expect an application-level
// reply to some frames (e.g. OKX text pings).
type Responder interface {
	Respond(msg []byte) (reply []byte, ok bool)
}

// Pinger is implemented by exchanges that require a periodic heartbeat.
type Pinger interface {
	PingFrame() any
	PingInterval() time.Duration
}

// Backfiller is implemented by exchanges with a REST kline history endpoint.
type Backfiller interface {
	Backfill(ctx context.Context, sel selection.Selection, start, end time.Time) ([]tick.Tick, error)
}
