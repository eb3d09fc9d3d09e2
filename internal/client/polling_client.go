package client

import (
	"sync"

	"github.com/luciancaetano/wsockets"
)

// PollingClient is a callback-free client for loop driven code.
//
// It owns an EventClient whose message slot appends to a queue; Receive hands
// the whole queue over. Connection and error transitions are only visible
// through Status.
type PollingClient struct {
	client *EventClient

	mu    sync.Mutex
	queue []wsockets.Message
}

// NewPollingClient creates a polling client connected to address.
// Same failure conditions as NewEventClient. The four callbacks in cfg are
// ignored: poll mode reports through Status and Receive only.
func NewPollingClient(address string, cfg *Config) (*PollingClient, error) {
	p := &PollingClient{}

	// The message slot is preset before the provider is opened, so no message
	// slips past the queue. Other callbacks are not used in poll mode.
	c := *cfg.withDefaults()
	c.OnConnection = nil
	c.OnClose = nil
	c.OnError = nil
	c.OnMessage = p.enqueue

	client, err := NewEventClient(address, &c)
	if err != nil {
		return nil, err
	}
	p.client = client

	return p, nil
}

// enqueue runs in the provider context and only appends.
func (p *PollingClient) enqueue(_ wsockets.Conn, msg wsockets.Message) {
	p.mu.Lock()
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
}

// Receive returns every message received since the previous call, in arrival
// order, and empties the queue. It never blocks and returns nil when nothing
// arrived.
func (p *PollingClient) Receive() []wsockets.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := p.queue
	p.queue = nil
	return msgs
}

// Pending returns the number of queued messages.
func (p *PollingClient) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ID returns a unique identifier for the client
func (p *PollingClient) ID() string {
	return p.client.ID()
}

// URL returns the address the client was created with
func (p *PollingClient) URL() string {
	return p.client.URL()
}

// Status returns the current connection status
func (p *PollingClient) Status() wsockets.ConnectionStatus {
	return p.client.Status()
}

// SendString sends a text frame. It fails unless the status is StatusConnected.
func (p *PollingClient) SendString(text string) error {
	return p.client.SendString(text)
}

// SendBinary sends a binary frame. It fails unless the status is StatusConnected.
func (p *PollingClient) SendBinary(data []byte) error {
	return p.client.SendBinary(data)
}

// Close asks the provider to close the connection. It is idempotent.
func (p *PollingClient) Close() error {
	return p.client.Close()
}
