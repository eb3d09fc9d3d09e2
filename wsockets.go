package wsockets

import "io"

// Conn is the capability set handed to event callbacks.
//
// It is a borrowed view of the client that owns the connection: callbacks may
// query the status, send and close through it, but it must not be retained as a
// second owner of the connection.
//
// Example usage:
//
//	client.SetOnConnection(func(conn wsockets.Conn) {
//	    if err := conn.SendString("hello"); err != nil {
//	        log.Printf("send failed: %v", err)
//	    }
//	})
type Conn interface {
	// ID returns the unique identifier generated for this client.
	ID() string

	// URL returns the address the client was created with.
	URL() string

	// Status returns the current connection status.
	Status() ConnectionStatus

	// SendString sends a text frame.
	//
	// Returns an error matching ErrInvalidState if the status is not
	// StatusConnected. Delivery is not confirmed.
	SendString(text string) error

	// SendBinary sends a binary frame.
	//
	// Same failure contract as SendString.
	SendBinary(data []byte) error

	// Close requests the connection to be closed.
	//
	// Close is idempotent. Completion is observed later through the close
	// callback or the status moving to StatusDisconnected.
	Close() error
}

// OnConnectionFn is called once the connection is open.
// The connection is already in StatusConnected, so the callback may send right away.
type OnConnectionFn = func(conn Conn)

// OnCloseFn is called once when the connection is closed.
type OnCloseFn = func()

// OnErrorFn is called when the provider reports a runtime error.
// An error does not imply the connection is closed; a close event may follow.
type OnErrorFn = func(err error)

// OnMessageFn is called for every decoded inbound message, in arrival order.
type OnMessageFn = func(conn Conn, msg Message)

// Frame is one inbound payload as delivered by a provider.
//
// Providers set either Data or Reader. A non-nil Reader means the payload is
// streamed and must be read to completion before the next frame is delivered.
type Frame struct {
	Type   MessageType
	Data   []byte
	Reader io.Reader
}

// Handlers are the four event hooks a provider invokes for one socket, plus the
// inbound size limit it enforces while reading.
//
// Providers invoke them asynchronously, one socket's events in wire order: open
// before any message, messages in arrival order, close last. Handlers are never
// invoked from inside Open, SendText, SendBinary or Close.
type Handlers struct {
	OnOpen    func()
	OnMessage func(frame Frame)
	OnError   func(err error)
	OnClose   func()

	// ReadLimit is the largest inbound message in bytes. Zero or a negative
	// value means no limit. A provider stops reading a message as soon as it
	// passes the limit, reports an error matching ErrMessageTooLarge and closes
	// the connection with status 1009.
	ReadLimit int64
}

// Provider opens sockets. It stands in for the host's native WebSocket implementation.
//
// Example usage:
//
//	provider := ws.NewGorillaProvider(nil)
//	client, err := ws.NewEventClient("wss://echo.example.com", ws.WithProvider(provider))
type Provider interface {
	// Open starts connecting to address and returns immediately.
	//
	// An error is returned only when the request is refused up front, for
	// example a malformed address. Connection progress is reported later
	// through the handlers.
	Open(address string, handlers Handlers) (Socket, error)
}

// Socket is the live connection handle returned by a Provider.
type Socket interface {
	// SendText enqueues a text frame.
	SendText(text string) error

	// SendBinary enqueues a binary frame.
	SendBinary(data []byte) error

	// Close starts closing the connection. The close handler fires later.
	Close() error
}

// EmitOpen invokes OnOpen if set.
func (h Handlers) EmitOpen() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

// EmitMessage invokes OnMessage if set.
func (h Handlers) EmitMessage(frame Frame) {
	if h.OnMessage != nil {
		h.OnMessage(frame)
	}
}

// EmitError invokes OnError if set.
func (h Handlers) EmitError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// EmitClose invokes OnClose if set.
func (h Handlers) EmitClose() {
	if h.OnClose != nil {
		h.OnClose()
	}
}
