// Package channel defines the subscription actions understood by the real-time feed.
package channel

import (
	"errors"
	"fmt"
)

// Action identifies the channel a connection asks the server to stream.
// It is sent verbatim as the first frame after connecting, so it may be a
// plain channel tag or a JSON directive such as
// {"subscribeTo": ["trading.product.sb26500"]}.
type Action string

// Known actions. The feed accepts others; these are the ones observed in use.
const (
	PortfolioPerformance Action = "portfolio.performance"
	PositionOpened       Action = "position.opened"
	PositionClosed       Action = "position.closed"
	ProductQuote         Action = "trading.quote"
)

// DefaultAction is used when no action is configured.
const DefaultAction = PortfolioPerformance

var known = map[Action]bool{
	PortfolioPerformance: true,
	PositionOpened:       true,
	PositionClosed:       true,
	ProductQuote:         true,
}

// ErrEmptyAction is returned for an empty action.
var ErrEmptyAction = errors.New("subscription action is empty")

// String returns the action as sent on the wire.
func (a Action) String() string {
	return string(a)
}

// IsKnown reports whether the action is one of the predefined constants.
func (a Action) IsKnown() bool {
	return known[a]
}

// Validate checks that the action is non-empty. Any other content,
// whitespace included, is passed to the server untouched.
func (a Action) Validate() error {
	if a == "" {
		return ErrEmptyAction
	}
	return nil
}

// Parse converts and validates a configured action string without altering it.
func Parse(s string) (Action, error) {
	a := Action(s)
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

// ParseAll parses a list of actions, rejecting duplicates.
func ParseAll(values []string) ([]Action, error) {
	seen := make(map[Action]bool, len(values))
	actions := make([]Action, 0, len(values))
	for _, v := range values {
		a, err := Parse(v)
		if err != nil {
			return nil, err
		}
		if seen[a] {
			return nil, fmt.Errorf("duplicate subscription action %q", string(a))
		}
		seen[a] = true
		actions = append(actions, a)
	}
	return actions, nil
}
