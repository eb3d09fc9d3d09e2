// Package wstest provides an in-memory Provider for tests.
//
// Sockets opened through it never touch the network. The test drives the
// connection by firing events by hand and inspects what the client sent:
//
//	provider := wstest.NewProvider()
//	client, _ := ws.NewEventClient("ws://game.test", ws.WithProvider(provider))
//
//	socket := provider.Last()
//	socket.Open()
//	socket.Text("ping")
//	socket.Closed()
package wstest

import (
	"io"
	"sync"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/wsurl"
)

var (
	_ wsockets.Provider = (*Provider)(nil)
	_ wsockets.Socket   = (*Socket)(nil)
)

// Provider records every socket it opens.
type Provider struct {
	mu       sync.Mutex
	sockets  []*Socket
	openErr  error
	validate bool
}

// NewProvider creates a provider that validates addresses like a real one.
func NewProvider() *Provider {
	return &Provider{validate: true}
}

// RejectWith makes subsequent Open calls fail with err. nil restores normal behavior.
func (p *Provider) RejectWith(err error) {
	p.mu.Lock()
	p.openErr = err
	p.mu.Unlock()
}

// Open implements wsockets.Provider. It never fires events by itself.
func (p *Provider) Open(address string, handlers wsockets.Handlers) (wsockets.Socket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.openErr != nil {
		return nil, p.openErr
	}
	if p.validate {
		if _, err := wsurl.Parse(address); err != nil {
			return nil, err
		}
	}

	s := &Socket{address: address, handlers: handlers}
	p.sockets = append(p.sockets, s)
	return s, nil
}

// Sockets returns every socket opened so far.
func (p *Provider) Sockets() []*Socket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Socket(nil), p.sockets...)
}

// Last returns the most recently opened socket, or nil.
func (p *Provider) Last() *Socket {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sockets) == 0 {
		return nil
	}
	return p.sockets[len(p.sockets)-1]
}

// Socket is an in-memory socket whose events are fired by the test.
type Socket struct {
	address  string
	handlers wsockets.Handlers

	mu         sync.Mutex
	sent       []wsockets.Message
	closeCalls int
	sendErr    error
}

// Address returns the address the socket was opened with.
func (s *Socket) Address() string {
	return s.address
}

// ReadLimit returns the inbound size limit the client asked for.
func (s *Socket) ReadLimit() int64 {
	return s.handlers.ReadLimit
}

// SendText implements wsockets.Socket.
func (s *Socket) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, wsockets.NewTextMessage(text))
	return nil
}

// SendBinary implements wsockets.Socket.
func (s *Socket) SendBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, wsockets.NewBinaryMessage(data))
	return nil
}

// Close implements wsockets.Socket. It only counts the call; fire Closed to
// deliver the close event.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	return nil
}

// FailSendsWith makes subsequent sends fail with err. nil restores normal behavior.
func (s *Socket) FailSendsWith(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Sent returns the frames sent through the socket, in order.
func (s *Socket) Sent() []wsockets.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wsockets.Message(nil), s.sent...)
}

// CloseCalls returns how many times Close reached the socket.
func (s *Socket) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Open fires the open event.
func (s *Socket) Open() {
	s.handlers.EmitOpen()
}

// Text fires a text message event.
func (s *Socket) Text(text string) {
	s.Frame(wsockets.Frame{Type: wsockets.TextMessage, Data: []byte(text)})
}

// Binary fires a binary message event with the payload delivered directly.
func (s *Socket) Binary(data []byte) {
	s.Frame(wsockets.Frame{Type: wsockets.BinaryMessage, Data: data})
}

// BinaryStream fires a binary message event whose payload must be read from r.
func (s *Socket) BinaryStream(r io.Reader) {
	s.Frame(wsockets.Frame{Type: wsockets.BinaryMessage, Reader: r})
}

// Frame fires a message event with an arbitrary frame.
func (s *Socket) Frame(frame wsockets.Frame) {
	s.handlers.EmitMessage(frame)
}

// Error fires the error event.
func (s *Socket) Error(err error) {
	s.handlers.EmitError(err)
}

// Closed fires the close event.
func (s *Socket) Closed() {
	s.handlers.EmitClose()
}
