// Package subscriber implements the real-time stream subscriber: one
// authenticated WebSocket connection whose inbound frames are fanned out
// to registered handlers.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bux-stream/application/credential"
	"bux-stream/core/event"
	"bux-stream/core/eventbus"
	"bux-stream/core/state"
	"bux-stream/domain/channel"
	"bux-stream/infrastructure/transport"
)

// DefaultURL is the real-time subscription endpoint.
const DefaultURL = "wss://rtf.getbux.com/subscriptions/me"

// DefaultConnectTimeout bounds credential lookup plus the WebSocket handshake.
const DefaultConnectTimeout = 10 * time.Second

// ErrStreamClosed is returned by Start when the peer ended the stream.
// It marks normal completion, as opposed to a ConnectionError or a transport failure.
var ErrStreamClosed = errors.New("stream closed")

// ConnectionError reports a failure to establish the stream.
type ConnectionError struct {
	URL string
	// StatusCode is the HTTP status of a refused handshake, zero otherwise.
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Observer receives lifecycle notifications. Implementations must be safe
// for concurrent use when shared between subscribers.
type Observer interface {
	StateChanged(action string, from, to state.ConnState)
	EventReceived(action string)
	DeliveryFault(action string, err error)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, state.ConnState, state.ConnState) {}
func (nopObserver) EventReceived(string)                                  {}
func (nopObserver) DeliveryFault(string, error)                           {}

// NopObserver is an Observer that ignores all notifications.
var NopObserver Observer = nopObserver{}

// FaultHandler is called on the receive goroutine for every delivery fault.
type FaultHandler func(err error)

// Config holds configuration for creating a StreamSubscriber.
type Config struct {
	URL            string
	Action         channel.Action
	Credentials    credential.Provider
	Dialer         transport.Dialer
	EventBus       eventbus.EventBus
	ConnectTimeout time.Duration
	Observer       Observer
	OnFault        FaultHandler
	Logger         *slog.Logger
	// Now returns the arrival timestamp for events; defaults to time.Now.
	Now func() time.Time
}

// StreamSubscriber owns one streaming connection and its receive loop.
// A subscriber can be started once; reconnecting requires a new instance.
type StreamSubscriber struct {
	id             string
	url            string
	action         channel.Action
	credentials    credential.Provider
	dialer         transport.Dialer
	bus            eventbus.EventBus
	connectTimeout time.Duration
	observer       Observer
	onFault        FaultHandler
	now            func() time.Time
	logger         *slog.Logger

	state   state.ConnState
	stateMu sync.RWMutex

	received atomic.Uint64
	faults   atomic.Uint64
}

// New creates a StreamSubscriber in the Idle state.
func New(cfg *Config) (*StreamSubscriber, error) {
	if cfg == nil {
		return nil, errors.New("subscriber config is nil")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credential provider is required")
	}

	action := cfg.Action
	if action == "" {
		action = channel.DefaultAction
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}

	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = transport.NewWebSocketDialer(nil)
	}
	bus := cfg.EventBus
	if bus == nil {
		bus = eventbus.New()
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()

	return &StreamSubscriber{
		id:             id,
		url:            url,
		action:         action,
		credentials:    cfg.Credentials,
		dialer:         dialer,
		bus:            bus,
		connectTimeout: connectTimeout,
		observer:       observer,
		onFault:        cfg.OnFault,
		now:            now,
		logger:         logger.With("connection_id", id, "action", action.String()),
		state:          state.StateIdle,
	}, nil
}

// ID returns the connection ID attached to every event and log line.
func (s *StreamSubscriber) ID() string {
	return s.id
}

// Action returns the subscription action sent after connecting.
func (s *StreamSubscriber) Action() channel.Action {
	return s.action
}

// State returns the current connection state.
func (s *StreamSubscriber) State() state.ConnState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// EventsReceived returns the number of frames dispatched so far.
func (s *StreamSubscriber) EventsReceived() uint64 {
	return s.received.Load()
}

// DeliveryFaults returns the number of handler failures so far.
func (s *StreamSubscriber) DeliveryFaults() uint64 {
	return s.faults.Load()
}

// Subscribe registers a handler for all subsequent events. It may be
// called in any state, including concurrently with an in-flight dispatch.
func (s *StreamSubscriber) Subscribe(handler eventbus.Handler) string {
	return s.bus.Subscribe(handler)
}

// Unsubscribe removes a handler registration.
func (s *StreamSubscriber) Unsubscribe(subscriptionID string) {
	s.bus.Unsubscribe(subscriptionID)
}

// Start connects, sends the subscription action and dispatches inbound
// frames until the stream ends. It blocks for the lifetime of the stream.
//
// Start returns ErrStreamClosed when the peer closes the stream, a
// *ConnectionError when the stream cannot be established, ctx.Err() on
// cancellation, and a *state.StateError when called on a subscriber that
// has already been started. Any other error is a transport failure.
func (s *StreamSubscriber) Start(ctx context.Context) error {
	if err := s.transition(state.StateConnecting); err != nil {
		return err
	}

	s.logger.Info("Connecting to stream", "url", s.url)

	conn, err := s.connect(ctx)
	if err != nil {
		s.logger.Error("Failed to connect to stream", "error", err)
		s.close()
		return err
	}

	if err := s.transition(state.StateStreaming); err != nil {
		conn.Close()
		s.close()
		return err
	}

	if err := conn.WriteText(ctx, s.action.String()); err != nil {
		conn.Close()
		s.close()
		s.logger.Error("Failed to send subscription action", "error", err)
		return &ConnectionError{URL: s.url, Err: fmt.Errorf("failed to send subscription action: %w", err)}
	}

	s.logger.Info("Stream established")

	err = s.receive(ctx, conn)
	s.close()

	switch {
	case errors.Is(err, ErrStreamClosed):
		s.logger.Info("Stream closed by peer", "events", s.EventsReceived(), "faults", s.DeliveryFaults())
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		s.logger.Info("Stream cancelled", "events", s.EventsReceived(), "faults", s.DeliveryFaults())
	default:
		s.logger.Error("Stream failed", "error", err, "events", s.EventsReceived())
	}

	return err
}

// connect obtains the token and performs the handshake under the connect timeout.
func (s *StreamSubscriber) connect(ctx context.Context) (transport.Conn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	token, err := s.credentials.AccessToken(connectCtx)
	if err != nil {
		return nil, &ConnectionError{URL: s.url, Err: fmt.Errorf("failed to obtain access token: %w", err)}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := s.dialer.Dial(connectCtx, s.url, header)
	if err != nil {
		connErr := &ConnectionError{URL: s.url, Err: err}
		var hsErr *transport.HandshakeError
		if errors.As(err, &hsErr) {
			connErr.StatusCode = hsErr.StatusCode
		}
		return nil, connErr
	}
	return conn, nil
}

// receive is the main frame loop. It is the only reader of conn.
func (s *StreamSubscriber) receive(ctx context.Context, conn transport.Conn) error {
	// Closing the connection is what unblocks a pending ReadText on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	action := s.action.String()

	for {
		payload, err := conn.ReadText()

		// Frames read after cancellation are not dispatched.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, transport.ErrPeerClosed) {
				return ErrStreamClosed
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		index := s.received.Add(1)
		e := event.NewStreamEvent(s.id, action, index, payload, s.now())
		s.observer.EventReceived(action)

		for _, fault := range s.bus.Dispatch(e) {
			s.reportFault(fault)
		}
	}
}

func (s *StreamSubscriber) reportFault(fault error) {
	s.faults.Add(1)
	s.logger.Warn("Handler failed", "error", fault)
	s.observer.DeliveryFault(s.action.String(), fault)
	if s.onFault != nil {
		s.onFault(fault)
	}
}

// transition moves to the target state, rejecting invalid transitions.
func (s *StreamSubscriber) transition(to state.ConnState) error {
	s.stateMu.Lock()
	from := s.state
	if !from.CanTransitionTo(to) {
		s.stateMu.Unlock()
		reason := ""
		if to == state.StateConnecting {
			reason = "subscriber already started"
		}
		return state.NewStateError(from, to, reason)
	}
	s.state = to
	s.stateMu.Unlock()

	s.logger.Debug("State changed", "from", from.String(), "to", to.String())
	s.observer.StateChanged(s.action.String(), from, to)
	return nil
}

// close moves the subscriber to its terminal state.
func (s *StreamSubscriber) close() {
	_ = s.transition(state.StateClosed)
}
