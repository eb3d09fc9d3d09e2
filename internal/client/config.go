package client

import (
	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/provider/gorilla"
)

// DefaultMaxMessageSize bounds a single inbound message (10MB).
const DefaultMaxMessageSize = 10 * 1024 * 1024

// Config holds the client configuration.
type Config struct {
	// Provider opens the underlying socket. Defaults to the gorilla provider.
	Provider wsockets.Provider
	// MaxMessageSize is the largest inbound message accepted, in bytes.
	// Zero or a negative value disables the limit.
	MaxMessageSize int64

	// Callbacks installed before the provider is opened. Events can arrive as
	// soon as the constructor returns, so these are the only slots guaranteed
	// to see the first event. The setters replace them later.
	OnConnection wsockets.OnConnectionFn
	OnClose      wsockets.OnCloseFn
	OnError      wsockets.OnErrorFn
	OnMessage    wsockets.OnMessageFn
}

// DefaultConfig returns the default client configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:       gorilla.New(nil),
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	cfg := *c
	if cfg.Provider == nil {
		cfg.Provider = gorilla.New(nil)
	}
	return &cfg
}
