package ws

import (
	"github.com/luciancaetano/wsockets/internal/echo"
	"github.com/luciancaetano/wsockets/internal/ratelimit"
)

type EchoServer = echo.Server
type EchoSession = echo.Session
type RateLimitConfig = ratelimit.Config
type CheckOriginFn = echo.CheckOriginFn
type OnConnectFn = echo.OnConnectFn
type OnDisconnectFn = echo.OnDisconnectFn
type ServerConfig = *echo.Config

// NewEchoServer creates a WebSocket server that sends every frame back to its sender.
// It is meant for trying clients out and for tests.
//
// Parameters:
//   - cfg: server configuration built with NewServerConfig. nil listens on no
//     fixed address, serves "/ws" and applies DefaultRateLimitConfig()
//
// Example:
//
//	server := ws.NewEchoServer(ws.NewServerConfig(":9001", ws.NoRateLimit(), ws.AllOrigins(), nil, nil))
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
func NewEchoServer(cfg ServerConfig) *EchoServer {
	return echo.New(cfg)
}

func NewServerConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &echo.Config{
		Addr:            addr,
		RateLimitConfig: rateLimitConfig,
		CheckOrigin:     checkOrigin,
		OnConnect:       onConnect,
		OnDisconnect:    onDisconnect,
	}
}

// AllOrigins returns the checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return echo.AllOrigins()
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return ratelimit.Default()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return ratelimit.Disabled()
}
