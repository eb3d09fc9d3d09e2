package gorilla

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/ratelimit"
	"github.com/luciancaetano/wsockets/internal/wsurl"
)

var _ wsockets.Provider = (*Provider)(nil)

// Config holds the gorilla provider settings.
type Config struct {
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every frame write
	WriteTimeout time.Duration
	// PongTimeout is how long the connection may stay silent before it is dropped
	PongTimeout time.Duration
	// PingInterval must be shorter than PongTimeout
	PingInterval time.Duration
	// SendBufferSize is the number of frames queued ahead of the writer
	SendBufferSize    int
	Header            http.Header
	EnableCompression bool
	// RateLimitConfig limits inbound messages. nil disables it.
	RateLimitConfig *ratelimit.Config
}

// DefaultConfig returns the default provider configuration
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongTimeout:      60 * time.Second,
		PingInterval:     54 * time.Second,
		SendBufferSize:   256,
		RateLimitConfig:  ratelimit.Disabled(),
	}
}

// Provider opens sockets with gorilla/websocket.
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
	if c.PongTimeout <= 0 {
		c.PongTimeout = def.PongTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
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
		limiter:  ratelimit.NewLimiter(p.cfg.RateLimitConfig),
	}

	go s.run()

	return s, nil
}

type outbound struct {
	typ  int
	data []byte
}

type socket struct {
	cfg      *Config
	url      string
	handlers wsockets.Handlers
	ctx      context.Context
	cancel   context.CancelFunc
	sendCh   chan outbound
	limiter  *ratelimit.Limiter

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
}

func (s *socket) SendText(text string) error {
	return s.send(websocket.TextMessage, []byte(text))
}

func (s *socket) SendBinary(data []byte) error {
	return s.send(websocket.BinaryMessage, bytes.Clone(data))
}

func (s *socket) send(typ int, data []byte) error {
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

// Close sends a close frame and gives the peer a moment to answer it.
// The read loop ends on the answer or the deadline and fires the close event.
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

	if conn == nil {
		return nil
	}

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		return conn.Close()
	}
	return conn.SetReadDeadline(deadline)
}

func (s *socket) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *socket) run() {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  s.cfg.HandshakeTimeout,
		EnableCompression: s.cfg.EnableCompression,
	}

	conn, _, err := dialer.DialContext(s.ctx, s.url, s.cfg.Header)
	if err != nil {
		if !s.isClosed() {
			logs.Errorf("websocket dial failed, url: %s, err: %+v", s.url, err)
			s.handlers.EmitError(err)
		}
		s.cancel()
		s.handlers.EmitClose()
		return
	}

	s.mu.Lock()
	if s.closed {
		// Closed while the handshake was finishing
		s.mu.Unlock()
		conn.Close()
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

// readLoop delivers inbound frames until the connection ends.
func (s *socket) readLoop(conn *websocket.Conn) {
	defer s.shutdown(conn)

	// gorilla answers an oversized message with a 1009 close and ErrReadLimit
	if s.handlers.ReadLimit > 0 {
		conn.SetReadLimit(s.handlers.ReadLimit)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	// reported is set once a streamed binary message hit the limit; the client
	// has already seen that error
	reported := false

	for {
		typ, r, err := conn.NextReader()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) && reported {
				return
			}
			if !s.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Errorf("unexpected websocket close, url: %s, err: %+v", s.url, err)
				s.handlers.EmitError(s.readError(err))
			}
			return
		}

		// Reset read deadline after successful read
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if !s.limiter.Allow() {
			logs.Errorf("inbound rate limit exceeded, url: %s", s.url)
			s.handlers.EmitError(wsockets.ErrRateLimited)
			s.closeWithCode(conn, websocket.ClosePolicyViolation, wsockets.ErrMsgRateLimited)
			return
		}

		switch typ {
		case websocket.TextMessage:
			data, err := io.ReadAll(r)
			if err != nil {
				if !s.isClosed() {
					s.handlers.EmitError(s.readError(err))
				}
				return
			}
			s.handlers.EmitMessage(wsockets.Frame{Type: wsockets.TextMessage, Data: data})

		case websocket.BinaryMessage:
			// The reader is only valid until the next NextReader call,
			// so the handler consumes it before we loop
			lr := &limitedReader{r: r, s: s}
			s.handlers.EmitMessage(wsockets.Frame{Type: wsockets.BinaryMessage, Reader: lr})
			reported = lr.exceeded
		}
	}
}

// readError reports gorilla's read limit as a *wsockets.SizeError.
func (s *socket) readError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return &wsockets.SizeError{Limit: s.handlers.ReadLimit}
	}
	return err
}

// limitedReader hands a streamed message to the client and remembers whether
// it ran into the read limit.
type limitedReader struct {
	r        io.Reader
	s        *socket
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if errors.Is(err, websocket.ErrReadLimit) {
		l.exceeded = true
		err = l.s.readError(err)
	}
	return n, err
}

func (s *socket) closeWithCode(conn *websocket.Conn, code int, reason string) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	message := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
}

func (s *socket) shutdown(conn *websocket.Conn) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	conn.Close()

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
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(msg.typ, msg.data); err != nil {
				s.writeFailed(conn, err)
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
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
	conn.Close()
}
