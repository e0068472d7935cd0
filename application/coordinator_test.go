package application

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bux-stream/application/credential"
	"bux-stream/application/subscriber"
	"bux-stream/core/event"
	"bux-stream/core/state"
	"bux-stream/domain/channel"
	"bux-stream/infrastructure/transport"
)

// scriptDialer serves a fixed frame list per connection, echoing the action
// received as the first frame so tests can tell connections apart.
type scriptDialer struct {
	frames []string
	err    error
}

func (d *scriptDialer) Dial(ctx context.Context, url string, header http.Header) (transport.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &scriptConn{frames: d.frames}, nil
}

type scriptConn struct {
	frames []string
	action string
	next   int
}

func (c *scriptConn) WriteText(ctx context.Context, payload string) error {
	c.action = payload
	return nil
}

func (c *scriptConn) ReadText() (string, error) {
	if c.next >= len(c.frames) {
		return "", transport.ErrPeerClosed
	}
	f := c.action + ":" + c.frames[c.next]
	c.next++
	return f, nil
}

func (c *scriptConn) Close() error { return nil }

func TestNewCoordinator_RequiresActions(t *testing.T) {
	_, err := NewCoordinator(&CoordinatorConfig{Credentials: credential.Static("T")})
	assert.Error(t, err)
}

func TestNewCoordinator_PropagatesSubscriberErrors(t *testing.T) {
	_, err := NewCoordinator(&CoordinatorConfig{
		Actions: []channel.Action{channel.PortfolioPerformance},
	})
	assert.Error(t, err)
}

func TestCoordinator_RunsOneSubscriberPerAction(t *testing.T) {
	actions := []channel.Action{channel.PortfolioPerformance, channel.PositionOpened}
	coord, err := NewCoordinator(&CoordinatorConfig{
		Actions:       actions,
		Credentials:   credential.Static("T"),
		DialerFactory: func() transport.Dialer { return &scriptDialer{frames: []string{"A", "B"}} },
	})
	require.NoError(t, err)
	require.Len(t, coord.Subscribers(), 2)

	var mu sync.Mutex
	seen := make(map[string][]string)
	coord.Subscribe(func(e event.StreamEvent) error {
		mu.Lock()
		seen[e.Action()] = append(seen[e.Action()], e.Payload())
		mu.Unlock()
		return nil
	})

	require.NoError(t, coord.Run(context.Background()))

	assert.Equal(t, []string{"portfolio.performance:A", "portfolio.performance:B"}, seen["portfolio.performance"])
	assert.Equal(t, []string{"position.opened:A", "position.opened:B"}, seen["position.opened"])
	for _, sub := range coord.Subscribers() {
		assert.Equal(t, state.StateClosed, sub.State())
	}

	assert.Error(t, coord.Run(context.Background()), "second Run should fail")
}

func TestCoordinator_JoinsConnectionFailures(t *testing.T) {
	coord, err := NewCoordinator(&CoordinatorConfig{
		Actions:       []channel.Action{channel.PortfolioPerformance, channel.PositionClosed},
		Credentials:   credential.Static("T"),
		DialerFactory: func() transport.Dialer { return &scriptDialer{err: errors.New("refused")} },
	})
	require.NoError(t, err)

	err = coord.Run(context.Background())

	require.Error(t, err)
	var connErr *subscriber.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Contains(t, err.Error(), "portfolio.performance")
	assert.Contains(t, err.Error(), "position.closed")
}

func TestCoordinator_FailureDoesNotStopOthers(t *testing.T) {
	dialers := []transport.Dialer{
		&scriptDialer{err: errors.New("refused")},
		&scriptDialer{frames: []string{"A", "B"}},
	}
	var next int
	coord, err := NewCoordinator(&CoordinatorConfig{
		Actions:     []channel.Action{channel.PortfolioPerformance, channel.PositionOpened},
		Credentials: credential.Static("T"),
		DialerFactory: func() transport.Dialer {
			d := dialers[next]
			next++
			return d
		},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	coord.Subscribe(func(e event.StreamEvent) error {
		mu.Lock()
		got = append(got, e.Payload())
		mu.Unlock()
		return nil
	})

	err = coord.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "portfolio.performance")
	assert.NotContains(t, err.Error(), "position.opened")
	assert.Equal(t, []string{"position.opened:A", "position.opened:B"}, got)
}

func TestCoordinator_CancellationIsNormal(t *testing.T) {
	coord, err := NewCoordinator(&CoordinatorConfig{
		Actions:       []channel.Action{channel.PortfolioPerformance},
		Credentials:   credential.Static("T"),
		DialerFactory: func() transport.Dialer { return blockingDialer{} },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	sub := coord.Subscribers()[0]
	require.Eventually(t, func() bool { return sub.State() == state.StateStreaming }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// blockingDialer yields connections that block until closed.
type blockingDialer struct{}

func (blockingDialer) Dial(ctx context.Context, url string, header http.Header) (transport.Conn, error) {
	return &blockingConn{closed: make(chan struct{})}, nil
}

type blockingConn struct {
	once   sync.Once
	closed chan struct{}
}

func (c *blockingConn) WriteText(ctx context.Context, payload string) error { return nil }

func (c *blockingConn) ReadText() (string, error) {
	<-c.closed
	return "", errors.New("closed")
}

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
