// Package signal connects the engine to the real-time signaling
// transport over an outbound WebSocket.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("gateway closed")
)

const (
	writeTimeout  = 5 * time.Second
	dialTimeout   = 10 * time.Second
	defaultBuffer = 32
)

// Gateway is a typed boundary, not a decision maker: outbound envelopes
// go out as JSON frames, inbound frames come back as decoded envelopes.
type Gateway struct {
	url        string
	pingPeriod time.Duration

	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewGateway(url string, pingPeriod time.Duration, buffer int) *Gateway {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Gateway{
		url:        url,
		pingPeriod: pingPeriod,
		send:       make(chan []byte, buffer),
	}
}

// Connect dials the signaling server. Call before Run.
func (g *Gateway) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, g.url, nil)
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}
	g.conn = conn
	log.Info().Str("module", "signal").Str("url", g.url).Msg("connected to signaling")
	return nil
}

// Run drives the read and write pumps until ctx is canceled or the
// connection drops. Every decoded envelope goes to handler.
func (g *Gateway) Run(ctx context.Context, handler func(core.Envelope)) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		g.writePump(ctx)
		cancel()
		// Closing the connection is what unblocks a read in flight.
		g.Close()
	}()
	g.readPump(ctx, handler)
	cancel()
	g.Close()
}

// Send queues one envelope, fire and forget. A full buffer drops the
// message rather than blocking the caller.
func (g *Gateway) Send(env core.Envelope) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrClosed
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	select {
	case g.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.send)
	g.mu.Unlock()
	if g.conn != nil {
		_ = g.conn.Close()
	}
	log.Info().Str("module", "signal").Msg("gateway closed")
}

func (g *Gateway) writePump(ctx context.Context) {
	var ping *time.Ticker
	if g.pingPeriod > 0 {
		ping = time.NewTicker(g.pingPeriod)
		defer ping.Stop()
	} else {
		ping = time.NewTicker(time.Hour)
		ping.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := g.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := g.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-g.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := g.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := g.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, handler func(core.Envelope)) {
	defer log.Info().Str("module", "signal").Msg("readPump closing")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := g.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			env, err := core.DecodeEnvelope(data)
			if err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("bad signaling frame")
				continue
			}
			handler(env)
		}
	}
}
