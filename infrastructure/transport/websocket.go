package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig contains configuration for the WebSocket dialer.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	// MaxMessageSize limits inbound frame size in bytes; zero means unlimited.
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns default WebSocket configuration.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   1 << 20,
	}
}

// WebSocketDialer implements Dialer using gorilla/websocket.
type WebSocketDialer struct {
	config *WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a gorilla-backed dialer.
func NewWebSocketDialer(config *WebSocketConfig) *WebSocketDialer {
	if config == nil {
		config = DefaultWebSocketConfig()
	}
	return &WebSocketDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
	}
}

// Dial opens a WebSocket connection.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		hsErr := &HandshakeError{Err: err}
		if resp != nil {
			hsErr.StatusCode = resp.StatusCode
			hsErr.Status = resp.Status
			resp.Body.Close()
		}
		return nil, hsErr
	}

	if d.config.MaxMessageSize > 0 {
		ws.SetReadLimit(d.config.MaxMessageSize)
	}

	return &webSocketConn{ws: ws, writeTimeout: d.config.WriteTimeout}, nil
}

var _ Dialer = (*WebSocketDialer)(nil)

// webSocketConn adapts *websocket.Conn to Conn.
type webSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func (c *webSocketConn) WriteText(ctx context.Context, payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *webSocketConn) ReadText() (string, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			// A TCP drop arrives as CloseAbnormalClosure and stays a transport error.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, io.EOF) {
				return "", ErrPeerClosed
			}
			return "", err
		}
		// Control frames are handled inside gorilla; only data frames reach here.
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (c *webSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
