// Package coder implements wsockets.Provider on top of github.com/coder/websocket.
package coder

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/yanun0323/logs"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/wsurl"
)

var _ wsockets.Provider = (*Provider)(nil)

// Config holds the coder provider settings.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval is the keepalive period. Each ping waits PongTimeout for its pong.
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBufferSize    int
	Header            http.Header
	EnableCompression bool
}

// DefaultConfig returns the default provider configuration
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     54 * time.Second,
		PongTimeout:      60 * time.Second,
		SendBufferSize:   256,
	}
}

// Provider opens sockets with coder/websocket.
type Provider struct {
	cfg *Config
}

// New creates a provider. If cfg is nil, DefaultConfig() is used; zero fields
// take their default values.
func New(cfg *Config) *Provider {
	def := DefaultConfig()
	if cfg == nil {
		return &Provider{cfg: def}
	}

	c := *cfg
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = def.PongTimeout
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	return &Provider{cfg: &c}
}

// Open validates address and starts dialing it in the background.
func (p *Provider) Open(address string, handlers wsockets.Handlers) (wsockets.Socket, error) {
	u, err := wsurl.Parse(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &socket{
		cfg:      p.cfg,
		url:      u.String(),
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
		sendCh:   make(chan outbound, p.cfg.SendBufferSize),
	}

	go s.run()

	return s, nil
}

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

type socket struct {
	cfg      *Config
	url      string
	handlers wsockets.Handlers
	ctx      context.Context
	cancel   context.CancelFunc
	sendCh   chan outbound

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
}

func (s *socket) SendText(text string) error {
	return s.send(websocket.MessageText, []byte(text))
}

func (s *socket) SendBinary(data []byte) error {
	return s.send(websocket.MessageBinary, bytes.Clone(data))
}

func (s *socket) send(typ websocket.MessageType, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.conn == nil {
		return wsockets.ErrConnectionClosed
	}

	select {
	case s.sendCh <- outbound{typ: typ, data: data}:
		return nil
	default:
		return wsockets.ErrSendBufferFull
	}
}

// Close starts the closing handshake in the background. coder's Close waits
// for the peer's answer, which the read loop has to receive.
func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	// Aborts a dial in progress and stops the write pump
	s.cancel()

	if conn != nil {
		go conn.Close(websocket.StatusNormalClosure, "")
	}
	return nil
}

func (s *socket) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *socket) run() {
	opts := &websocket.DialOptions{
		HTTPHeader:      s.cfg.Header,
		CompressionMode: websocket.CompressionDisabled,
	}
	if s.cfg.EnableCompression {
		opts.CompressionMode = websocket.CompressionContextTakeover
	}

	dialCtx, cancel := context.WithTimeout(s.ctx, s.cfg.HandshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.url, opts)
	cancel()
	if err != nil {
		if !s.isClosed() {
			logs.Errorf("websocket dial failed, url: %s, err: %+v", s.url, err)
			s.handlers.EmitError(err)
		}
		s.cancel()
		s.handlers.EmitClose()
		return
	}
	conn.SetReadLimit(readLimit(s.handlers.ReadLimit))

	s.mu.Lock()
	if s.closed {
		// Closed while the handshake was finishing
		s.mu.Unlock()
		conn.CloseNow()
		s.handlers.EmitClose()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	logs.Infof("websocket connected, url: %s", s.url)

	go s.writePump(conn)

	s.handlers.EmitOpen()
	s.readLoop(conn)
}

// readLoop delivers inbound messages until the connection ends.
func (s *socket) readLoop(conn *websocket.Conn) {
	defer s.shutdown(conn)

	// The read context is never cancelled: coder closes the connection when it
	// is, which would cut the closing handshake short.
	ctx := context.Background()
	for {
		typ, r, err := conn.Reader(ctx)
		if err != nil {
			if !s.isClosed() && !isOrderlyClose(err) {
				logs.Errorf("unexpected websocket close, url: %s, err: %+v", s.url, err)
				s.handlers.EmitError(err)
			}
			return
		}

		sr := &sizeReader{r: r, limit: s.handlers.ReadLimit}

		switch typ {
		case websocket.MessageText:
			data, err := io.ReadAll(sr)
			if err != nil {
				if !s.isClosed() {
					s.handlers.EmitError(err)
				}
				return
			}
			s.handlers.EmitMessage(wsockets.Frame{Type: wsockets.TextMessage, Data: data})

		case websocket.MessageBinary:
			s.handlers.EmitMessage(wsockets.Frame{Type: wsockets.BinaryMessage, Reader: sr})
			// The client read past the limit and has reported it already
			reported := sr.over()
			// coder refuses the next Reader call until this one hit EOF
			if _, err := io.Copy(io.Discard, sr); err != nil {
				if !s.isClosed() && !reported {
					s.handlers.EmitError(err)
				}
				return
			}
		}
	}
}

// readLimit converts a client limit to coder's, where -1 disables it.
// coder reads one byte past its limit, so the largest int64 is treated as none.
func readLimit(limit int64) int64 {
	if limit <= 0 || limit == math.MaxInt64 {
		return -1
	}
	return limit
}

// sizeReader reports coder's read limit as a *wsockets.SizeError. coder has
// already sent the 1009 close when the error comes back.
type sizeReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (sr *sizeReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	sr.read += int64(n)
	if err != nil && err != io.EOF && sr.limit > 0 && sr.read >= sr.limit {
		err = &wsockets.SizeError{Limit: sr.limit}
	}
	return n, err
}

func (sr *sizeReader) over() bool {
	return sr.limit > 0 && sr.read > sr.limit
}

func isOrderlyClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}

func (s *socket) shutdown(conn *websocket.Conn) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	conn.CloseNow()

	logs.Infof("websocket disconnected, url: %s", s.url)
	s.handlers.EmitClose()
}

// writePump pumps frames from the send channel to the websocket connection
func (s *socket) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.sendCh:
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
			err := conn.Write(ctx, msg.typ, msg.data)
			cancel()
			if err != nil {
				s.writeFailed(conn, err)
				return
			}

		case <-ticker.C:
			// Ping blocks until the pong arrives through the read loop
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PongTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				s.writeFailed(conn, err)
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// writeFailed reports the error and drops the connection; the read loop
// then fails and fires the close event.
func (s *socket) writeFailed(conn *websocket.Conn, err error) {
	if !s.isClosed() {
		logs.Errorf("websocket write failed, url: %s, err: %+v", s.url, err)
		s.handlers.EmitError(err)
	}
	conn.CloseNow()
}
