package client

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/luciancaetano/wsockets"
)

var _ wsockets.Conn = (*EventClient)(nil)

// EventClient owns one connection's lifecycle and dispatches provider events
// to the registered callbacks.
type EventClient struct {
	id      string
	url     string
	socket  wsockets.Socket
	decoder *reassembler

	// ready is closed once construction finished; handlers wait on it
	ready chan struct{}

	// dispatchMu serializes event handling so callbacks never overlap
	dispatchMu sync.Mutex

	mu           sync.RWMutex
	status       wsockets.ConnectionStatus
	closing      bool
	onConnection wsockets.OnConnectionFn
	onClose      wsockets.OnCloseFn
	onError      wsockets.OnErrorFn
	onMessage    wsockets.OnMessageFn
}

// NewEventClient creates a client and asks the provider to connect to address.
//
// A nil error does not mean the connection succeeded; the status starts at
// StatusConnecting and moves as provider events arrive. If cfg is nil,
// DefaultConfig() is used.
func NewEventClient(address string, cfg *Config) (*EventClient, error) {
	cfg = cfg.withDefaults()

	c := &EventClient{
		id:           uuid.New().String(),
		url:          address,
		decoder:      newReassembler(cfg.MaxMessageSize),
		ready:        make(chan struct{}),
		status:       wsockets.StatusConnecting,
		onConnection: cfg.OnConnection,
		onClose:      cfg.OnClose,
		onError:      cfg.OnError,
		onMessage:    cfg.OnMessage,
	}

	socket, err := cfg.Provider.Open(address, wsockets.Handlers{
		OnOpen:    c.handleOpen,
		OnMessage: c.handleMessage,
		OnError:   c.handleError,
		OnClose:   c.handleClose,
		ReadLimit: cfg.MaxMessageSize,
	})
	if err != nil {
		c.status = wsockets.StatusDisconnected
		close(c.ready)
		return nil, &wsockets.ConnectionError{Address: address, Err: err}
	}

	c.socket = socket
	close(c.ready)
	return c, nil
}

// ID returns a unique identifier for the client
func (c *EventClient) ID() string {
	return c.id
}

// URL returns the address the client was created with
func (c *EventClient) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *EventClient) Status() wsockets.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetOnConnection replaces the connection callback. nil clears it.
func (c *EventClient) SetOnConnection(fn wsockets.OnConnectionFn) {
	c.mu.Lock()
	c.onConnection = fn
	c.mu.Unlock()
}

// SetOnClose replaces the close callback. nil clears it.
func (c *EventClient) SetOnClose(fn wsockets.OnCloseFn) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// SetOnError replaces the error callback. nil clears it.
func (c *EventClient) SetOnError(fn wsockets.OnErrorFn) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// SetOnMessage replaces the message callback. nil clears it.
func (c *EventClient) SetOnMessage(fn wsockets.OnMessageFn) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// SendString sends a text frame. It fails unless the status is StatusConnected.
func (c *EventClient) SendString(text string) error {
	socket, err := c.connectedSocket("send string")
	if err != nil {
		return err
	}
	if err := socket.SendText(text); err != nil {
		return fmt.Errorf("%s: %w", wsockets.ErrMsgFailedToSend, err)
	}
	return nil
}

// SendBinary sends a binary frame. It fails unless the status is StatusConnected.
func (c *EventClient) SendBinary(data []byte) error {
	socket, err := c.connectedSocket("send binary")
	if err != nil {
		return err
	}
	if err := socket.SendBinary(data); err != nil {
		return fmt.Errorf("%s: %w", wsockets.ErrMsgFailedToSend, err)
	}
	return nil
}

// Close asks the provider to close the connection.
// Only the first call reaches the provider; later calls and calls after the
// connection is closed return nil.
func (c *EventClient) Close() error {
	c.mu.Lock()
	if c.closing || c.status == wsockets.StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	socket := c.socket
	c.mu.Unlock()

	return socket.Close()
}

func (c *EventClient) connectedSocket(op string) (wsockets.Socket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.status != wsockets.StatusConnected {
		return nil, &wsockets.StateError{Op: op, Status: c.status}
	}
	return c.socket, nil
}

// transition moves to next if the state machine allows it.
func (c *EventClient) transition(next wsockets.ConnectionStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.CanTransition(next) {
		return false
	}
	c.status = next
	return true
}

func (c *EventClient) handleOpen() {
	<-c.ready
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if !c.transition(wsockets.StatusConnected) {
		return
	}

	c.mu.RLock()
	fn := c.onConnection
	c.mu.RUnlock()

	if fn != nil {
		fn(c)
	}
}

func (c *EventClient) handleMessage(frame wsockets.Frame) {
	<-c.ready
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if c.Status() == wsockets.StatusDisconnected {
		return
	}

	msg, err := c.decoder.decode(frame)
	if err != nil {
		c.reportError(err)
		return
	}

	c.mu.RLock()
	fn := c.onMessage
	c.mu.RUnlock()

	if fn != nil {
		fn(c, msg)
	}
}

func (c *EventClient) handleError(err error) {
	<-c.ready
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.reportError(err)
}

func (c *EventClient) handleClose() {
	<-c.ready
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if !c.transition(wsockets.StatusDisconnected) {
		return
	}

	c.mu.RLock()
	fn := c.onClose
	c.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

// reportError must be called with dispatchMu held.
// A repeated error keeps StatusError and still reaches the callback.
func (c *EventClient) reportError(err error) {
	c.mu.Lock()
	if c.status == wsockets.StatusDisconnected {
		c.mu.Unlock()
		return
	}
	if c.status.CanTransition(wsockets.StatusError) {
		c.status = wsockets.StatusError
	}
	fn := c.onError
	c.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
