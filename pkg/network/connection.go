package network

import (
	"context"
	"sync"
	"time"

	"github.com/cbodonnell/relayhub/pkg/clients"
	"github.com/cbodonnell/relayhub/pkg/log"
	"nhooyr.io/websocket"
)

// wsConnection is the outbound side of a websocket client. Messages are
// buffered and written by writePump so senders never block on the network.
type wsConnection struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConnection(id string, conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *wsConnection {
	return &wsConnection{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (c *wsConnection) ID() string {
	return c.id
}

// Send queues data for the write pump. A client whose buffer is full is
// disconnected rather than allowed to stall everyone else.
func (c *wsConnection) Send(data []byte) error {
	if !c.IsOpen() {
		return clients.ErrConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		log.Warn("Client %s is too slow to keep up with messages, closing", c.id)
		c.closeWith(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		return clients.ErrConnectionClosed
	}
}

func (c *wsConnection) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Close is a server initiated close, reported to the peer as going away.
func (c *wsConnection) Close(reason string) {
	c.closeWith(websocket.StatusGoingAway, reason)
}

// closeWith marks the connection closed and runs the close handshake in the
// background so the caller is never held up by the peer.
func (c *wsConnection) closeWith(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		go func() {
			if err := c.conn.Close(status, reason); err != nil {
				log.Trace("Close handshake with client %s ended: %v", c.id, err)
			}
		}()
	})
}

// markClosed flags the connection as closed after the peer went away.
func (c *wsConnection) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *wsConnection) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case msg := <-c.send:
			if err := c.write(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (c *wsConnection) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, msg)
}
