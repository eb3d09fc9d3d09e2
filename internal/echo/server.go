package echo

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"github.com/luciancaetano/wsockets"
	"github.com/luciancaetano/wsockets/internal/ratelimit"
)

// ErrServerAlreadyRunning is returned by Start on a running server.
var ErrServerAlreadyRunning = errors.New("server already running")

// CheckOriginFn validates the origin of an upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after the handshake and before the session's read loop starts.
type OnConnectFn = func(session *Session)

// OnDisconnectFn is called when a session ends. voluntary is true when the peer
// closed the connection with a normal or going-away close frame.
type OnDisconnectFn = func(session *Session, voluntary bool)

// Config holds the echo server configuration.
type Config struct {
	Addr string
	// Path is where websocket upgrades are served. Defaults to "/ws".
	Path            string
	RateLimitConfig *ratelimit.Config
	CheckOrigin     CheckOriginFn
	OnConnect       OnConnectFn
	OnDisconnect    OnDisconnectFn
}

// Server echoes every text and binary frame back to its sender.
type Server struct {
	addr     string
	path     string
	server   *http.Server
	listener net.Listener
	sessions sync.Map // map[string]*Session
	wg       sync.WaitGroup

	rateLimitConfig *ratelimit.Config

	mu           sync.RWMutex
	running      bool
	stopping     bool
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnDisconnectFn
}

// AllOrigins allows every origin. Development only.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// New creates an echo server. A nil RateLimitConfig means ratelimit.Default().
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	rateLimitConfig := cfg.RateLimitConfig
	if rateLimitConfig == nil {
		rateLimitConfig = ratelimit.Default()
	}
	path := cfg.Path
	if path == "" {
		path = "/ws"
	}
	return &Server{
		addr:            cfg.Addr,
		path:            path,
		rateLimitConfig: rateLimitConfig,
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnDisconnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Handler returns the HTTP handler serving upgrades on the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	return mux
}

// Start binds the address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.listener = ln
	s.stopping = false
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logs.Errorf("echo server stopped, addr: %s, err: %+v", ln.Addr(), err)
		}
	}()

	logs.Infof("echo server listening, addr: %s, path: %s", ln.Addr(), s.path)
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// address of the upgrade endpoint once started.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + s.path
}

// Stop closes every session, shuts the HTTP server down and waits for the
// session goroutines to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	if !s.running {
		s.mu.Unlock()
		s.closeSessions()
		s.wg.Wait()
		return nil
	}
	s.running = false
	server := s.server
	s.mu.Unlock()

	s.closeSessions()

	err := server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) closeSessions() {
	s.sessions.Range(func(key, value interface{}) bool {
		if session, ok := value.(*Session); ok {
			session.CloseWithCode(websocket.CloseGoingAway, "server stopping")
		}
		return true
	})
}

// SessionCount returns the number of sessions that are still open.
func (s *Server) SessionCount() int {
	count := 0
	s.sessions.Range(func(key, value interface{}) bool {
		if session, ok := value.(*Session); ok && session.IsAlive() {
			count++
		}
		return true
	})
	return count
}

// Broadcast sends msg to every session that is still open.
func (s *Server) Broadcast(ctx context.Context, msg wsockets.Message) {
	s.sessions.Range(func(key, value interface{}) bool {
		if session, ok := value.(*Session); ok && session.IsAlive() {
			session.Send(ctx, msg)
		}
		return true
	})
}

// handleWebSocket upgrades the request and starts the session
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		return
	}

	// Stop sets stopping under mu before it waits on wg, so a session is
	// either counted here first or never registered
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	session := newSession(conn, r.RemoteAddr, s.rateLimitConfig)
	s.wg.Add(1)
	s.sessions.Store(session.ID(), session)
	s.mu.Unlock()

	go s.handleSession(session)
}

// handleSession echoes frames from a connected session
func (s *Server) handleSession(session *Session) {
	voluntary := false

	defer func() {
		if s.onDisconnect != nil {
			s.onDisconnect(session, voluntary)
		}
		s.sessions.Delete(session.ID())
		session.Close()
		<-session.done
		s.wg.Done()
	}()

	// Set read deadline to prevent indefinite blocking
	session.conn.SetReadDeadline(time.Now().Add(pongWait))

	// Set pong handler to reset read deadline on pong
	session.conn.SetPongHandler(func(string) error {
		session.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(session)
	}

	for {
		typ, data, err := session.conn.ReadMessage()
		if err != nil {
			voluntary = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logs.Errorf("unexpected websocket close, session: %s, err: %+v", session.ID(), err)
			}
			return
		}

		// Reset read deadline after successful read
		session.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Check rate limit before echoing
		if !session.rateLimiter.Allow() {
			logs.Errorf("rate limit exceeded, session: %s, remote_addr: %s", session.ID(), session.RemoteAddr())
			session.CloseWithCode(websocket.ClosePolicyViolation, wsockets.ErrMsgRateLimited)
			return
		}

		if err := session.send(session.Context(), typ, data); err != nil {
			return
		}
	}
}
