package ws

import (
	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/client"
	"github.com/luciancaetano/wsockets/internal/provider/coder"
	"github.com/luciancaetano/wsockets/internal/provider/gobwas"
	"github.com/luciancaetano/wsockets/internal/provider/gorilla"
)

type EventClient = client.EventClient
type PollingClient = client.PollingClient

type GorillaConfig = gorilla.Config
type CoderConfig = coder.Config
type GobwasConfig = gobwas.Config

// DefaultMaxMessageSize is the inbound message limit applied unless WithMaxMessageSize says otherwise.
const DefaultMaxMessageSize = client.DefaultMaxMessageSize

// Option configures a client.
type Option func(cfg *client.Config)

// WithProvider sets the provider that opens the connection. nil keeps the default.
func WithProvider(p wsockets.Provider) Option {
	return func(cfg *client.Config) {
		if p != nil {
			cfg.Provider = p
		}
	}
}

// WithMaxMessageSize bounds a single inbound message in bytes.
// Zero or a negative value disables the limit.
func WithMaxMessageSize(n int64) Option {
	return func(cfg *client.Config) {
		cfg.MaxMessageSize = n
	}
}

// OnConnection installs the connection callback before connecting starts.
// Ignored by NewPollingClient, which reports through Status and Receive.
func OnConnection(fn wsockets.OnConnectionFn) Option {
	return func(cfg *client.Config) {
		cfg.OnConnection = fn
	}
}

// OnMessage installs the message callback before connecting starts.
// Ignored by NewPollingClient, which owns the message slot and queues messages
// for Receive.
func OnMessage(fn wsockets.OnMessageFn) Option {
	return func(cfg *client.Config) {
		cfg.OnMessage = fn
	}
}

// OnError installs the error callback before connecting starts.
// Ignored by NewPollingClient, which reports through Status and Receive.
func OnError(fn wsockets.OnErrorFn) Option {
	return func(cfg *client.Config) {
		cfg.OnError = fn
	}
}

// OnClose installs the close callback before connecting starts.
// Ignored by NewPollingClient, which reports through Status and Receive.
func OnClose(fn wsockets.OnCloseFn) Option {
	return func(cfg *client.Config) {
		cfg.OnClose = fn
	}
}

func newConfig(opts []Option) *client.Config {
	cfg := &client.Config{MaxMessageSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewEventClient creates an event mode client and starts connecting to address.
//
// The error is a *wsockets.ConnectionError when the provider refuses the address up
// front. A nil error only means connecting started. Events are delivered on
// provider goroutines and may begin before NewEventClient returns to the caller,
// so callbacks that must see the first event are passed as options; the setters
// replace them afterwards.
//
// Example:
//
//	client, err := ws.NewEventClient("wss://echo.example.com",
//	    ws.OnConnection(func(conn wsockets.Conn) {
//	        conn.SendString("Hello, World!")
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	client.SetOnMessage(func(conn wsockets.Conn, msg wsockets.Message) {
//	    log.Printf("new message: %v", msg)
//	})
func NewEventClient(address string, opts ...Option) (*EventClient, error) {
	return client.NewEventClient(address, newConfig(opts))
}

// NewPollingClient creates a poll mode client and starts connecting to address.
// Messages are queued until Receive is called.
//
// Only WithProvider and WithMaxMessageSize apply. OnConnection, OnMessage,
// OnError and OnClose are ignored: a poll mode client reports through Status
// and Receive, never through callbacks.
func NewPollingClient(address string, opts ...Option) (*PollingClient, error) {
	return client.NewPollingClient(address, newConfig(opts))
}

// NewGorillaProvider returns the default provider, built on gorilla/websocket.
// A nil cfg uses gorilla.DefaultConfig().
func NewGorillaProvider(cfg *GorillaConfig) wsockets.Provider {
	return gorilla.New(cfg)
}

// NewCoderProvider returns a provider built on coder/websocket.
func NewCoderProvider(cfg *CoderConfig) wsockets.Provider {
	return coder.New(cfg)
}

// NewGobwasProvider returns a provider built on gobwas/ws.
func NewGobwasProvider(cfg *GobwasConfig) wsockets.Provider {
	return gobwas.New(cfg)
}
