package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel is a message-oriented duplex connection to the gateway.
//
// Send and Receive operate on whole messages. Receive may only be called
// from one goroutine at a time; Send is safe for concurrent use. Close
// unblocks a pending Receive.
type Channel interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens a Channel to the gateway. The engine reconnect loop calls it
// on every attempt.
type Dialer func(ctx context.Context) (Channel, error)

// Options configures a WebSocket channel.
type Options struct {
	// URL is the gateway plugin endpoint, e.g. ws://127.0.0.1:9500/plugin.
	URL string

	// ConnectTimeout bounds the dial and WebSocket upgrade.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each Send. Zero means no deadline.
	WriteTimeout time.Duration

	// MaxMessageSize caps inbound message size in bytes. Zero means the
	// transport default.
	MaxMessageSize int64
}

// Client is a Channel backed by a WebSocket connection.
//
// Thread Safety:
//   - Send and Close may be called concurrently.
//   - Receive must be called from a single goroutine.
type Client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the gateway plugin endpoint.
//
// Parameters:
//   - ctx: cancels the connection attempt
//   - opts: endpoint and timeout settings
//
// Returns:
//   - *Client: open channel ready for Send/Receive
//   - error: connection or upgrade failure
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.ConnectTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", opts.URL, err)
	}
	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	return &Client{
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
	}, nil
}

// NewDialer returns a Dialer bound to the given options.
func NewDialer(opts Options) Dialer {
	return func(ctx context.Context) (Channel, error) {
		return Dial(ctx, opts)
	}
}

// Send writes one complete message to the gateway.
//
// Returns ErrSendFailed (wrapped) if the write fails; the channel should be
// considered broken after that.
func (c *Client) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("%w: set deadline: %v", ErrSendFailed, err)
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Receive blocks until one complete message arrives.
//
// Returns ErrReceiveFailed (wrapped) when the connection breaks or Close is
// called. Control frames are handled by the transport and never surfaced.
func (c *Client) Receive() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReceiveFailed, err)
		}
		// Only text frames carry protocol envelopes.
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close shuts down the channel and unblocks a pending Receive.
//
// A close frame is sent best-effort before tearing down the socket.
// Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
