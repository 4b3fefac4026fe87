package termsock

import (
	"net"
	"strconv"
	"time"

	"github.com/metavision/termlink/logger"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// DialTimeout bounds connection attempts. 0 means no timeout, matching
	// the protocol's lack of one; set it to avoid hanging on an unresponsive
	// peer.
	DialTimeout time.Duration

	// Logger receives the client's log output. Defaults to the no-op logger.
	Logger logger.Logger
}

// Client is the connecting endpoint. Connect is synchronous; everything else
// behaves like the server side: asynchronous sends, callback dispatch on the
// engine goroutine, and an exactly-once disconnect notification.
type Client struct {
	*base

	cfg ClientConfig
}

// NewClient creates a client and starts its engine goroutine.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		base: newBase(cfg.Logger),
		cfg:  cfg,
	}
}

// Connect resolves host and dials the server synchronously, then installs
// the connection on the engine. A successful Connect replaces and tears down
// any previous connection, firing its disconnect notification first.
//
// Parameters:
//   - host: Server hostname or IP
//   - port: Server TCP port
//   - onDisconnect: Invoked exactly once when this connection tears down.
//     May be nil.
//
// Returns:
//   - true when the connection is live; false when resolution or the
//     handshake failed, or the client is closed. On failure no partial
//     connection remains.
func (c *Client) Connect(host string, port int, onDisconnect DisconnectFunc) bool {
	if c.closed.Load() {
		return false
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		c.log.Warn("connect failed",
			logger.Field{Key: "addr", Value: addr},
			logger.Field{Key: "error", Value: err.Error()})
		return false
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if !c.postWait(func() { c.install(conn, onDisconnect) }) {
		_ = conn.Close() // client closed while dialing
		return false
	}

	c.log.Info("connected", logger.Field{Key: "addr", Value: addr})
	return true
}

// Close disconnects (firing the disconnect notification if a connection is
// live) and stops the engine goroutine. The client must not be used
// afterwards. Idempotent.
func (c *Client) Close() {
	c.closeBase()
}
