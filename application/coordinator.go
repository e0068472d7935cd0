// Package application orchestrates stream subscribers for a set of channels.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bux-stream/application/credential"
	"bux-stream/application/subscriber"
	"bux-stream/core/eventbus"
	"bux-stream/domain/channel"
	"bux-stream/infrastructure/transport"
)

// Coordinator runs one independent StreamSubscriber per subscription action.
// It does not reconnect: each subscriber runs once and the coordinator
// returns when all of them have finished.
type Coordinator struct {
	// Subscribers
	subscribers []*subscriber.StreamSubscriber
	mu          sync.Mutex
	started     bool

	logger *slog.Logger
}

// DialerFactory creates transport dialers, one per subscriber.
type DialerFactory func() transport.Dialer

// CoordinatorConfig holds configuration for the Coordinator.
type CoordinatorConfig struct {
	URL            string
	Actions        []channel.Action
	Credentials    credential.Provider
	DialerFactory  DialerFactory
	ConnectTimeout time.Duration
	Observer       subscriber.Observer
	OnFault        subscriber.FaultHandler
	Logger         *slog.Logger
}

// NewCoordinator creates subscribers for every configured action.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Actions) == 0 {
		return nil, errors.New("at least one subscription action is required")
	}

	c := &Coordinator{logger: cfg.Logger}

	for _, action := range cfg.Actions {
		var dialer transport.Dialer
		if cfg.DialerFactory != nil {
			dialer = cfg.DialerFactory()
		}

		sub, err := subscriber.New(&subscriber.Config{
			URL:            cfg.URL,
			Action:         action,
			Credentials:    cfg.Credentials,
			Dialer:         dialer,
			ConnectTimeout: cfg.ConnectTimeout,
			Observer:       cfg.Observer,
			OnFault:        cfg.OnFault,
			Logger:         cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create subscriber for %s: %w", action, err)
		}
		c.subscribers = append(c.subscribers, sub)
	}

	return c, nil
}

// Subscribe registers a handler on every subscriber.
func (c *Coordinator) Subscribe(handler eventbus.Handler) {
	for _, sub := range c.subscribers {
		sub.Subscribe(handler)
	}
}

// Subscribers returns the managed subscribers.
func (c *Coordinator) Subscribers() []*subscriber.StreamSubscriber {
	return c.subscribers
}

// Run starts every subscriber and blocks until all have finished.
// Peer closes and cancellation count as normal completion; the remaining
// failures are joined into the returned error.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("Coordinator started", "subscribers", len(c.subscribers))

	// The group has no shared context: one failing subscriber leaves the
	// others streaming. Wait reports only the first failure, so every failure
	// is also recorded for the joined result.
	var (
		g      errgroup.Group
		errMu  sync.Mutex
		failed []error
	)

	for _, sub := range c.subscribers {
		g.Go(func() error {
			err := sub.Start(ctx)
			if isNormalCompletion(ctx, err) {
				return nil
			}
			err = fmt.Errorf("%s: %w", sub.Action(), err)
			errMu.Lock()
			failed = append(failed, err)
			errMu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Warn("Coordinator stopped", "failures", len(failed), "first", err)
		return errors.Join(failed...)
	}

	c.logger.Info("Coordinator stopped", "failures", 0)
	return nil
}

func isNormalCompletion(ctx context.Context, err error) bool {
	if err == nil || errors.Is(err, subscriber.ErrStreamClosed) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
