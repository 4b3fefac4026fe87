package termsock

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/metavision/termlink/logger"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Port is the TCP port to listen on. 0 picks an ephemeral port; use Addr
	// to discover it.
	Port int

	// Logger receives the server's log output. Defaults to the no-op logger.
	Logger logger.Logger
}

// Server is the listening endpoint. It accepts at most one live connection;
// an incoming connection replaces the current one, firing the old
// connection's disconnect notification first. Accepting is armed one
// connection at a time with StartAccept and is not re-armed automatically.
type Server struct {
	*base

	listener  net.Listener
	accepting atomic.Bool
}

// NewServer binds a listener on the configured port and starts the server's
// engine goroutine. No connection is accepted until StartAccept is called.
//
// Parameters:
//   - cfg: Listening port and optional logger
//
// Returns:
//   - The server, or an error if the port could not be bound
func NewServer(cfg ServerConfig) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}

	s := &Server{
		base:     newBase(cfg.Logger),
		listener: ln,
	}
	s.log.Info("listening", logger.Field{Key: "addr", Value: ln.Addr().String()})
	return s, nil
}

// Addr returns the listener's address, useful when Port was 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// StartAccept arms the listener for one incoming connection. When a peer
// connects it becomes the live connection, tearing down and notifying any
// previous one first. After a disconnect, accepting must be re-armed by
// calling StartAccept again, typically from onDisconnect. Calling StartAccept
// while an accept is already pending is a no-op.
//
// Parameters:
//   - onDisconnect: Invoked exactly once when the accepted connection tears
//     down. May be nil.
func (s *Server) StartAccept(onDisconnect DisconnectFunc) {
	if s.closed.Load() {
		return
	}
	if !s.accepting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		conn, err := s.listener.Accept()
		s.accepting.Store(false)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error("accept error", logger.Field{Key: "error", Value: err.Error()})
			}
			return
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		s.log.Info("connection accepted",
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()})

		if !s.post(func() { s.install(conn, onDisconnect) }) {
			_ = conn.Close() // server closed while the accept was in flight
		}
	}()
}

// Close shuts the server down: the listener stops, the live connection (if
// any) tears down with its disconnect notification, and the engine goroutine
// exits. The server must not be used afterwards. Idempotent.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.closeBase()
	s.log.Info("server stopped")
}
