package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/protocol"
)

const (
	sendBufferSize = 256
	pingInterval   = 54 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

var (
	errConnClosed = errors.New("connection closed")
	errBufferFull = errors.New("send buffer full")
)

// Connection is one websocket client of the relay.
type Connection struct {
	id     string
	conn   *websocket.Conn
	server *Server
	log    *zap.Logger
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

func newConnection(id string, conn *websocket.Conn, server *Server) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		server: server,
		log:    server.log.With(zap.String("conn", id)),
		sendCh: make(chan []byte, sendBufferSize),
	}
}

// ID returns the connection's ULID.
func (c *Connection) ID() string {
	return c.id
}

// ReadLoop reads frames until the peer goes away and hands each one to the server.
func (c *Connection) ReadLoop(ctx context.Context) error {
	defer func() {
		_ = c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				return fmt.Errorf("read error: %w", err)
			}
			return nil
		}
		// Any inbound frame proves liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		c.server.handleFrame(c, data)
	}
}

// WriteLoop drains the send buffer and keeps the connection alive with pings.
func (c *Connection) WriteLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case data, ok := <-c.sendCh:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write error: %w", err)
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping error: %w", err)
			}
		}
	}
}

// Send queues raw bytes for the client. It never blocks: a closing
// connection or a full buffer returns an error and the bytes are dropped.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return errBufferFull
	}
}

// SendFrame encodes and queues f.
func (c *Connection) SendFrame(f *protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.Send(data)
}

// Close stops the connection. The write loop flushes a close frame once
// the buffer is drained.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.sendCh)
	return nil
}
