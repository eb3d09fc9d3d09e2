// Package gobwas implements wsockets.Provider on top of github.com/gobwas/ws.
//
// gobwas works on the raw net.Conn: frames are read with wsutil.Reader and
// control frames are answered by wsutil.ControlHandler. Every write, including
// pong and close answers, happens under one mutex so frames never interleave.
package gobwas

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/yanun0323/logs"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/wsurl"
)

var _ wsockets.Provider = (*Provider)(nil)

// Config holds the gobwas provider settings.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	SendBufferSize   int
	Header           http.Header
}

// DefaultConfig returns the default provider configuration
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     time.Second,
		PingInterval:     54 * time.Second,
		SendBufferSize:   256,
	}
}

// Provider opens sockets with gobwas/ws.
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
	op   ws.OpCode
	data []byte
}

type socket struct {
	cfg      *Config
	url      string
	handlers wsockets.Handlers
	ctx      context.Context
	cancel   context.CancelFunc
	sendCh   chan outbound

	// writeMu guards every frame written to conn
	writeMu sync.Mutex

	mu     sync.RWMutex
	conn   net.Conn
	closed bool
}

func (s *socket) SendText(text string) error {
	return s.send(ws.OpText, []byte(text))
}

func (s *socket) SendBinary(data []byte) error {
	return s.send(ws.OpBinary, bytes.Clone(data))
}

func (s *socket) send(op ws.OpCode, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.conn == nil {
		return wsockets.ErrConnectionClosed
	}

	select {
	case s.sendCh <- outbound{op: op, data: data}:
		return nil
	default:
		return wsockets.ErrSendBufferFull
	}
}

// Close sends a close frame and gives the peer a second to answer it.
func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()

	if conn == nil {
		return nil
	}

	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	if err := s.write(conn, ws.OpClose, body); err != nil {
		return conn.Close()
	}
	return conn.SetReadDeadline(time.Now().Add(time.Second))
}

func (s *socket) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// write sends one masked client frame.
func (s *socket) write(conn net.Conn, op ws.OpCode, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return wsutil.WriteClientMessage(conn, op, data)
}

func (s *socket) run() {
	dialer := ws.Dialer{
		Header:  ws.HandshakeHeaderHTTP(s.cfg.Header),
		Timeout: s.cfg.HandshakeTimeout,
	}

	conn, br, _, err := dialer.Dial(s.ctx, s.url)
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

	// Frames sent right behind the handshake response sit in br
	var src io.Reader = conn
	if br != nil {
		src = io.MultiReader(br, conn)
	}

	logs.Infof("websocket connected, url: %s", s.url)

	go s.writePump(conn)

	s.handlers.EmitOpen()
	s.readLoop(conn, src)
}

// readLoop delivers inbound messages until the connection ends.
func (s *socket) readLoop(conn net.Conn, src io.Reader) {
	defer s.shutdown(conn)

	rd := &wsutil.Reader{
		Source:    src,
		State:     ws.StateClientSide,
		CheckUTF8: true,
	}
	// Control frames may arrive between the fragments of a message
	rd.OnIntermediate = func(hdr ws.Header, r io.Reader) error {
		return s.control(conn, hdr, r)
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			s.readFailed(err)
			return
		}

		if hdr.OpCode.IsControl() {
			if err := s.control(conn, hdr, rd); err != nil {
				s.readFailed(err)
				return
			}
			continue
		}

		switch hdr.OpCode {
		case ws.OpText:
			data, err := s.readMessage(hdr, rd)
			if err != nil {
				s.messageFailed(conn, err)
				return
			}
			s.handlers.EmitMessage(wsockets.Frame{Type: wsockets.TextMessage, Data: data})

		case ws.OpBinary:
			// Binary payloads are buffered here and handed over whole
			data, err := s.readMessage(hdr, rd)
			if err != nil {
				s.messageFailed(conn, err)
				return
			}
			s.handlers.EmitMessage(wsockets.Frame{Type: wsockets.BinaryMessage, Data: data})

		default:
			if err := rd.Discard(); err != nil {
				s.readFailed(err)
				return
			}
		}
	}
}

// readMessage reads the rest of the current message, never buffering more than
// one byte past the read limit. hdr is the message's first frame.
func (s *socket) readMessage(hdr ws.Header, rd io.Reader) ([]byte, error) {
	limit := s.handlers.ReadLimit
	if limit <= 0 || limit == math.MaxInt64 {
		return io.ReadAll(rd)
	}
	if hdr.Length > limit {
		return nil, &wsockets.SizeError{Limit: limit}
	}

	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &wsockets.SizeError{Limit: limit}
	}
	return data, nil
}

// messageFailed reports an oversized message and closes with 1009; other
// errors go through readFailed.
func (s *socket) messageFailed(conn net.Conn, err error) {
	var tooLarge *wsockets.SizeError
	if !errors.As(err, &tooLarge) {
		s.readFailed(err)
		return
	}

	if !s.isClosed() {
		logs.Errorf("inbound message too large, url: %s, err: %+v", s.url, err)
		s.handlers.EmitError(err)
	}
	s.write(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusMessageTooBig, ""))
}

// control answers pings and close frames. A close frame ends the read loop
// with wsutil.ClosedError.
func (s *socket) control(conn net.Conn, hdr ws.Header, r io.Reader) error {
	if hdr.OpCode == ws.OpClose {
		return s.peerClosed(conn, r)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	handler := wsutil.ControlHandler{
		Src:   r,
		Dst:   conn,
		State: ws.StateClientSide,
	}
	return handler.Handle(hdr)
}

// peerClosed echoes the peer's close code. The answer is best effort: the peer
// may already have dropped the connection.
func (s *socket) peerClosed(conn net.Conn, r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	closed := wsutil.ClosedError{Code: ws.StatusNoStatusRcvd}
	if len(payload) >= 2 {
		closed.Code, closed.Reason = ws.ParseCloseFrameData(payload)
	}

	answer := closed.Code
	if answer == ws.StatusNoStatusRcvd {
		answer = ws.StatusNormalClosure
	}
	s.write(conn, ws.OpClose, ws.NewCloseFrameBody(answer, ""))

	return closed
}

func (s *socket) readFailed(err error) {
	if s.isClosed() || isOrderlyClose(err) {
		return
	}
	logs.Errorf("unexpected websocket close, url: %s, err: %+v", s.url, err)
	s.handlers.EmitError(err)
}

func isOrderlyClose(err error) bool {
	var closed wsutil.ClosedError
	if !errors.As(err, &closed) {
		return false
	}
	switch closed.Code {
	case ws.StatusNormalClosure, ws.StatusGoingAway, ws.StatusNoStatusRcvd:
		return true
	default:
		return false
	}
}

func (s *socket) shutdown(conn net.Conn) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	conn.Close()

	logs.Infof("websocket disconnected, url: %s", s.url)
	s.handlers.EmitClose()
}

// writePump pumps frames from the send channel to the websocket connection
func (s *socket) writePump(conn net.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.sendCh:
			if err := s.write(conn, msg.op, msg.data); err != nil {
				s.writeFailed(conn, err)
				return
			}

		case <-ticker.C:
			if err := s.write(conn, ws.OpPing, nil); err != nil {
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
func (s *socket) writeFailed(conn net.Conn, err error) {
	if !s.isClosed() {
		logs.Errorf("websocket write failed, url: %s, err: %+v", s.url, err)
		s.handlers.EmitError(err)
	}
	conn.Close()
}
