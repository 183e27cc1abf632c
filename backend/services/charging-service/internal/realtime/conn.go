package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when sending to a closed connection.
	ErrClosed = errors.New("realtime: connection closed")
	// ErrSlowConsumer is returned when the outbound buffer is full.
	ErrSlowConsumer = errors.New("realtime: outbound buffer full")
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 16
	readLimit           = 4096
)

// ConnOptions tunes a socket subscriber. Zero values fall back to defaults.
type ConnOptions struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// Conn is a websocket subscriber. Frames are written by a single write pump; inbound
// messages are read only to keep the connection alive and are discarded.
type Conn struct {
	ws           *websocket.Conn
	send         chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
	onClose      func()
}

// NewConn wraps an upgraded websocket. onClose runs once when the connection ends.
func NewConn(ws *websocket.Conn, opts ConnOptions, logger *zap.Logger, onClose func()) *Conn {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		ws:           ws,
		send:         make(chan []byte, opts.SendBuffer),
		closed:       make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		logger:       logger,
		onClose:      onClose,
	}
}

// Run pumps the connection until it closes or ctx ends.
func (c *Conn) Run(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

// Send enqueues msg without blocking.
func (c *Conn) Send(msg []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("dropping subscriber, buffer full")
		return ErrSlowConsumer
	}
}

// Close ends the connection. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.Close()
		_ = c.ws.Close()
	}()
	pongWait := c.pingInterval * 2
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("subscriber read closed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			_ = c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-c.closed:
			c.flush()
			_ = c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// flush writes frames that were queued before the close, such as a final completed frame.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(msg []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *Conn) writeControl(messageType int, data []byte) error {
	return c.ws.WriteControl(messageType, data, time.Now().Add(c.writeTimeout))
}
