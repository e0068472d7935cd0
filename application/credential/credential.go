// Package credential supplies access tokens to stream subscribers.
// Tokens are obtained elsewhere; this package only hands them over.
package credential

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrNoToken is returned when a provider has no access token to supply.
var ErrNoToken = errors.New("no access token available")

// DefaultTokenEnv is the environment variable read by the default provider.
const DefaultTokenEnv = "BUX_ACCESS_TOKEN"

// Provider supplies the bearer token used to authenticate a connection.
type Provider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Static is a Provider holding a fixed token.
type Static string

func (s Static) AccessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Env is a Provider reading the token from an environment variable on every call.
type Env struct {
	Name string
}

// NewEnv creates an Env provider. An empty name falls back to DefaultTokenEnv.
func NewEnv(name string) *Env {
	if name == "" {
		name = DefaultTokenEnv
	}
	return &Env{Name: name}
}

func (e *Env) AccessToken(ctx context.Context) (string, error) {
	return Static(strings.TrimSpace(os.Getenv(e.Name))).AccessToken(ctx)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context) (string, error)

func (f Func) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

var (
	_ Provider = Static("")
	_ Provider = (*Env)(nil)
	_ Provider = Func(nil)
)
