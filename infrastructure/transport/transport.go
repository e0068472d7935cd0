// Package transport provides the WebSocket connection used by stream subscribers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrPeerClosed is returned by Conn.ReadText when the peer ended the
// connection with a normal close or the stream reached EOF.
var ErrPeerClosed = errors.New("connection closed by peer")

// Dialer opens streaming connections.
type Dialer interface {
	// Dial opens a connection to url sending exactly the given headers.
	// It must honor ctx for the duration of the handshake.
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Conn is an open text-frame connection.
type Conn interface {
	// WriteText sends one text frame.
	WriteText(ctx context.Context, payload string) error

	// ReadText blocks until the next frame arrives.
	// Returns ErrPeerClosed when the peer closes normally.
	ReadText() (string, error)

	// Close closes the underlying connection. Safe to call more than once
	// and concurrently with ReadText, which then returns an error.
	Close() error
}

// HandshakeError reports that the server refused the connection upgrade.
type HandshakeError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("handshake refused with status %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
