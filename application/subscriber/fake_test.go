package subscriber

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"bux-stream/infrastructure/transport"
)

var errConnClosed = errors.New("use of closed connection")

// fakeDialer is a transport.Dialer test double that records handshakes.
type fakeDialer struct {
	mu      sync.Mutex
	conn    *fakeConn
	err     error
	dials   int
	url     string
	headers http.Header
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.url = url
	d.headers = header.Clone()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// frame is one scripted ReadText result.
type frame struct {
	payload string
	err     error
}

// fakeConn replays scripted frames. When the frame channel is closed and
// drained, ReadText reports ErrPeerClosed.
type fakeConn struct {
	frames   chan frame
	writeErr error

	mu     sync.Mutex
	writes []string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(buffer int) *fakeConn {
	return &fakeConn{
		frames: make(chan frame, buffer),
		closed: make(chan struct{}),
	}
}

// scriptedConn returns a conn that yields payloads and then a peer close.
func scriptedConn(payloads ...string) *fakeConn {
	c := newFakeConn(len(payloads))
	for _, p := range payloads {
		c.frames <- frame{payload: p}
	}
	close(c.frames)
	return c
}

func (c *fakeConn) WriteText(ctx context.Context, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, payload)
	return nil
}

func (c *fakeConn) ReadText() (string, error) {
	select {
	case <-c.closed:
		return "", errConnClosed
	default:
	}

	select {
	case f, ok := <-c.frames:
		if !ok {
			return "", transport.ErrPeerClosed
		}
		return f.payload, f.err
	case <-c.closed:
		return "", errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

var _ transport.Conn = (*fakeConn)(nil)
