package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sparsechat/internal/domain"
	"sparsechat/internal/wire"
)

const writeWait = 10 * time.Second

// WSConn is one WebSocket to the relay. Send may be called from several
// goroutines; Receive must only be called from one.
type WSConn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay's WebSocket endpoint.
func Dial(ctx context.Context, rawURL string) (*WSConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %s", domain.ErrTransport, rawURL, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrTransport, rawURL, err)
	}
	return &WSConn{ws: ws}, nil
}

// Send encodes m and writes it as one text frame.
func (c *WSConn) Send(ctx context.Context, m wire.Message) error {
	frame, err := wire.Encode(m)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionClosed, err)
	}
	return nil
}

// Receive blocks for the next envelope. Frames that do not decode are
// returned as protocol errors; the connection is still usable afterwards.
// Cancelling ctx closes the connection.
func (c *WSConn) Receive(ctx context.Context) (wire.Message, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionClosed, err)
	}
	return wire.Decode(data)
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// IsClosed reports whether err means the relay connection is gone.
func IsClosed(err error) bool {
	return errors.Is(err, domain.ErrConnectionClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
