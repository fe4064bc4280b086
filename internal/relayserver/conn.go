package relayserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sparsechat/internal/config"
	"sparsechat/internal/domain"
	"sparsechat/internal/platform/ratelimiter"
)

var (
	errPeerClosed = errors.New("relayserver: peer closed connection")
	errKicked     = errors.New("relayserver: connection dropped by registry")
)

// conn pumps frames between one WebSocket and the registry.
type conn struct {
	ws      *websocket.Conn
	peer    *Peer
	router  *Router
	limiter *ratelimiter.Frames
	cfg     config.Relay
	log     *logrus.Entry
}

// run blocks until either pump stops, then tears both down.
func (c *conn) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump() })
	g.Go(func() error { return c.writePump(gctx) })
	return g.Wait()
}

// readPump owns all reads. It returns when the socket is closed, which the
// write pump does on its way out.
func (c *conn) readPump() error {
	c.ws.SetReadLimit(c.cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errPeerClosed
			}
			return fmt.Errorf("%w: read: %v", domain.ErrTransport, err)
		}
		if typ != websocket.TextMessage {
			c.router.reject(c.peer, fmt.Errorf("%w: binary frames are not accepted", domain.ErrMalformed))
			continue
		}
		if !c.limiter.Allow(time.Now()) {
			c.log.Debug("frame rate limited")
			c.router.RateLimited(c.peer)
			continue
		}
		c.router.Dispatch(c.peer, data)
	}
}

// writePump is the only writer on the socket.
func (c *conn) writePump(ctx context.Context) error {
	ping := time.NewTicker(c.cfg.PongTimeout * 9 / 10)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.peer.Outbox():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("%w: write: %v", domain.ErrConnectionClosed, err)
			}
		case <-ping.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("%w: ping: %v", domain.ErrConnectionClosed, err)
			}
		case <-c.peer.Done():
			c.closeWith(websocket.ClosePolicyViolation, "outbox overflow")
			return errKicked
		case <-ctx.Done():
			c.closeWith(websocket.CloseGoingAway, "relay shutting down")
			return ctx.Err()
		}
	}
}

func (c *conn) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
}

// quiet reports errors that are a normal end of a connection.
func quiet(err error) bool {
	return err == nil ||
		errors.Is(err, errPeerClosed) ||
		errors.Is(err, context.Canceled)
}
