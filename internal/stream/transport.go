package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Sentinel errors surfaced by Conn implementations.
var (
	// ErrReceiveTimeout means no message arrived within the bounded
	// wait; the caller probes liveness and keeps waiting.
	ErrReceiveTimeout = errors.New("stream: receive timeout")
	// ErrClosed means the connection is gone and a reconnect is due.
	ErrClosed = errors.New("stream: connection closed")
)

// Transport dials the upstream event source.
type Transport interface {
	Connect(ctx context.Context, url string) (Conn, error)
}

// Conn is one live connection to the event source. Receive uses a
// bounded wait so liveness probing and shutdown checks are never
// starved.
type Conn interface {
	Send(text []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Ping() error
	Close() error
}

// WSTransport implements Transport over gorilla/websocket.
type WSTransport struct {
	// HandshakeTimeout bounds the dial. Zero means 10s.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds sends and pings. Zero means 10s.
	WriteTimeout time.Duration
	// ReadTimeout is the transport-level read deadline, extended on
	// every frame and pong. Zero means 120s.
	ReadTimeout time.Duration
}

// Connect dials the websocket endpoint and starts the reader pump.
func (t *WSTransport) Connect(ctx context.Context, url string) (Conn, error) {
	handshake := t.HandshakeTimeout
	if handshake == 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshake}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	writeTimeout := t.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}
	readTimeout := t.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 120 * time.Second
	}

	wc := &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
		frames:       make(chan frame, 64),
		done:         make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go wc.readLoop()
	return wc, nil
}

type frame struct {
	msg []byte
	err error
}

// wsConn wraps a websocket connection with the Conn contract. A
// websocket read error is permanent, so a dedicated goroutine pumps
// frames into a channel and Receive implements the bounded wait on the
// channel instead of the socket deadline.
type wsConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	readTimeout  time.Duration

	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) readLoop() {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case c.frames <- frame{err: ErrClosed}:
			case <-c.done:
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		select {
		case c.frames <- frame{msg: message}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Send(text []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, text)
}

// Receive waits for the next text message up to timeout. An expired
// wait maps to ErrReceiveTimeout; a dead transport maps to ErrClosed.
func (c *wsConn) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f.msg, f.err
	case <-c.done:
		return nil, ErrClosed
	case <-time.After(timeout):
		return nil, ErrReceiveTimeout
	}
}

func (c *wsConn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
	})
	return c.conn.Close()
}
