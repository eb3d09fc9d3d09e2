package wsurl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/luciancaetano/wsockets"
)

// Parse validates a websocket address the way a browser WebSocket constructor does:
// the scheme must be ws or wss, a host is required and fragments are rejected.
func Parse(address string) (*url.URL, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: empty address", wsockets.ErrInvalidAddress)
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wsockets.ErrInvalidAddress, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "":
		return nil, fmt.Errorf("%w: missing scheme in %q", wsockets.ErrInvalidAddress, address)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", wsockets.ErrInvalidAddress, u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", wsockets.ErrInvalidAddress, address)
	}

	if u.Fragment != "" || strings.Contains(address, "#") {
		return nil, fmt.Errorf("%w: fragments are not allowed", wsockets.ErrInvalidAddress)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}
