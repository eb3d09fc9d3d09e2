package echo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

type outbound struct {
	typ  int
	data []byte
}

// Session is one connected peer of the echo server.
type Session struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan outbound
	mu          sync.RWMutex
	closed      bool
	rateLimiter *ratelimit.Limiter
	done        chan struct{}
}

func newSession(conn *websocket.Conn, remoteAddr string, rateLimitConfig *ratelimit.Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	session := &Session{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan outbound, sendBufferSize),
		rateLimiter: ratelimit.NewLimiter(rateLimitConfig),
		done:        make(chan struct{}),
	}

	// Start the write pump
	go session.writePump()

	return session
}

// ID returns a unique identifier for the session
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer's network address
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Context returns the session's lifecycle context.
// It is cancelled when the connection closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Send queues msg for delivery with its original frame type
func (s *Session) Send(ctx context.Context, msg wsockets.Message) error {
	typ := websocket.TextMessage
	if msg.IsBinary() {
		typ = websocket.BinaryMessage
	}
	return s.send(ctx, typ, msg.Bytes())
}

func (s *Session) send(ctx context.Context, typ int, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return wsockets.ErrConnectionClosed
	}

	// Keep the lock while sending to prevent race with Close()
	select {
	case s.sendCh <- outbound{typ: typ, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return wsockets.ErrConnectionClosed
	}
}

// Close closes the session with a normal closure
func (s *Session) Close() error {
	return s.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (s *Session) CloseWithCode(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	s.conn.WriteControl(websocket.CloseMessage, message, deadline)

	return s.conn.Close()
}

// IsAlive returns true if the connection is still active
func (s *Session) IsAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// writePump pumps frames from the send channel to the websocket connection
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case msg := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(msg.typ, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}
