package termsock

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/metavision/termlink/idgen"
	"github.com/metavision/termlink/logger"
)

// opQueueDepth is the capacity of the engine's work queue. Producers posting
// while the queue is full block until the engine catches up, which bounds
// memory held by queued sends.
const opQueueDepth = 256

// liveConn is the state of the single live connection. All fields are touched
// only on the engine goroutine; the read pump interacts with it solely by
// posting ops that carry the *liveConn pointer, so ops queued for a replaced
// connection are recognized and ignored.
type liveConn struct {
	id           uint64
	sock         net.Conn
	recv         *receiver
	onDisconnect DisconnectFunc
	notified     bool
}

// base is the shared engine of Server and Client. One goroutine (engineLoop)
// owns all socket reads, writes, parser state, and teardown; everything else
// posts closures onto ops. The loop outlives individual connections and exits
// only when the endpoint is closed.
type base struct {
	log logger.Logger

	ops  chan func()
	disc chan struct{} // one-slot disconnect request, never blocks the sender
	quit chan struct{}
	done chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	// liveID is the generation ID of the live connection, 0 when idle. Sends
	// capture it at submission so a write queued against one connection is
	// never transmitted on its replacement.
	liveID    atomic.Uint64
	callbacks atomic.Pointer[Callbacks]
	gen       idgen.Sequence

	conn *liveConn // engine goroutine only
}

func newBase(log logger.Logger) *base {
	if log == nil {
		log = logger.Nop()
	}
	b := &base{
		log:  log,
		ops:  make(chan func(), opQueueDepth),
		disc: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go b.engineLoop()
	return b
}

// engineLoop drains the op queue until the endpoint is closed. There is no
// idle exit: an idle engine simply blocks here waiting for more work. A
// pending disconnect request is honored before the next op runs, so a
// Disconnect always takes effect ahead of work queued after it.
func (b *base) engineLoop() {
	defer close(b.done)
	for {
		select {
		case op := <-b.ops:
			select {
			case <-b.disc:
				b.teardownCurrent()
			default:
			}
			op()
		case <-b.disc:
			b.teardownCurrent()
		case <-b.quit:
			b.teardownCurrent()
			return
		}
	}
}

// post hands op to the engine goroutine, blocking while the queue is full.
// It reports false once the endpoint is closed.
func (b *base) post(op func()) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- op:
		return true
	case <-b.quit:
		return false
	}
}

// postWait posts op and blocks until the engine has executed it.
func (b *base) postWait(op func()) bool {
	ran := make(chan struct{})
	if !b.post(func() {
		op()
		close(ran)
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-b.done:
		return false
	}
}

// closeBase tears down the live connection (firing its disconnect
// notification) and stops the engine goroutine. Idempotent.
func (b *base) closeBase() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.quit)
		<-b.done
	})
}

// install makes sock the live connection, replacing and tearing down any
// previous one first so its disconnect notification fires before the new
// connection becomes active. Engine goroutine only.
func (b *base) install(sock net.Conn, onDisconnect DisconnectFunc) {
	b.teardownCurrent()

	c := &liveConn{
		id:           b.gen.Next(),
		sock:         sock,
		onDisconnect: onDisconnect,
	}
	c.recv = newReceiver(b.log.With(logger.Field{Key: "conn", Value: c.id}), b.deliver)
	b.conn = c
	b.liveID.Store(c.id)

	go b.readPump(c)
}

// teardownCurrent closes the live connection, if any, and fires its
// disconnect notification unless it already fired. Every teardown path —
// read error, write error, peer shutdown, replacement, explicit disconnect,
// endpoint close — funnels here on the engine goroutine, which is what makes
// the notification exactly-once. Engine goroutine only.
func (b *base) teardownCurrent() {
	c := b.conn
	if c == nil {
		return
	}
	b.conn = nil
	b.liveID.Store(0)
	_ = c.sock.Close()

	if !c.notified {
		c.notified = true
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	}
	b.log.Info("connection closed", logger.Field{Key: "conn", Value: c.id})
}

// readPump blocks on socket reads and posts each chunk to the engine. It is
// the only goroutine besides the engine that touches the socket, and only to
// read. It exits on the first read error; the posted error op triggers the
// teardown (and with it the disconnect notification) on the engine goroutine.
func (b *base) readPump(c *liveConn) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.sock.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !b.post(func() { b.handleChunk(c, chunk) }) {
				return
			}
		}
		if err != nil {
			b.post(func() { b.handleReadError(c, err) })
			return
		}
	}
}

// handleChunk feeds received bytes to the connection's parser. Engine
// goroutine only.
func (b *base) handleChunk(c *liveConn, chunk []byte) {
	if b.conn != c {
		return // connection was replaced; drop the stale chunk
	}
	if err := c.recv.feed(chunk); err != nil {
		b.log.Warn("framing error",
			logger.Field{Key: "conn", Value: c.id},
			logger.Field{Key: "error", Value: err.Error()})
		b.teardownCurrent()
	}
}

// handleReadError tears down the connection after its read pump failed.
// Engine goroutine only.
func (b *base) handleReadError(c *liveConn, err error) {
	if b.conn != c {
		return // already torn down or replaced; notification already handled
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		b.log.Debug("read error",
			logger.Field{Key: "conn", Value: c.id},
			logger.Field{Key: "error", Value: err.Error()})
	}
	b.teardownCurrent()
}

// write transmits one encoded package buffer on the connection it was
// submitted against, identified by generation ID. A write whose connection
// was torn down or replaced while it sat in the queue is aborted, never
// transmitted to the replacement peer. A failed write is treated as a
// disconnect; it is never retried and no error reaches the original sender
// beyond the disconnect notification. Engine goroutine only.
func (b *base) write(id uint64, buf []byte) {
	c := b.conn
	if c == nil || c.id != id {
		return // connection torn down or replaced since submission
	}
	if _, err := c.sock.Write(buf); err != nil {
		b.log.Debug("write error",
			logger.Field{Key: "conn", Value: c.id},
			logger.Field{Key: "error", Value: err.Error()})
		b.teardownCurrent()
	}
}

// submit validates the connection and name, encodes the package, and posts
// the owned buffer for asynchronous transmission, stamped with the
// connection generation it was submitted against.
func (b *base) submit(name string, encode func() []byte) bool {
	id := b.liveID.Load()
	if !validName(name) || id == 0 {
		return false
	}
	buf := encode()
	return b.post(func() { b.write(id, buf) })
}

// deliver dispatches one assembled package through the callback snapshot
// taken at this moment. Engine goroutine only.
func (b *base) deliver(typ PackageType, name []byte, content []byte) {
	cbs := b.callbacks.Load()
	if cbs == nil {
		return
	}
	switch typ {
	case SingleString:
		if cbs.OnString != nil {
			cbs.OnString(string(name), string(trimNUL(content)))
		}
	case SingleInt:
		if cbs.OnInt32 != nil {
			if len(content) != 4 {
				b.log.Warn("int package with malformed content",
					logger.Field{Key: "size", Value: len(content)})
				return
			}
			cbs.OnInt32(string(name), decodeInt32(content))
		}
	case Bytes:
		if cbs.OnBytes != nil {
			cbs.OnBytes(string(name), content)
		}
	case ListOfStrings:
		if cbs.OnStringList != nil {
			cbs.OnStringList(string(name), splitStringList(content))
		}
	}
}

// SendString asynchronously sends a single string labelled name. The value is
// copied before the call returns. Reports false when no connection is live.
func (b *base) SendString(name, value string) bool {
	return b.submit(name, func() []byte { return encodeString(name, value) })
}

// SendInt32 asynchronously sends a single int32 labelled name. Reports false
// when no connection is live.
func (b *base) SendInt32(name string, value int32) bool {
	return b.submit(name, func() []byte { return encodeInt32(name, value) })
}

// SendBytes asynchronously sends a byte block labelled name. data is copied
// before the call returns and may be empty. Reports false when no connection
// is live.
func (b *base) SendBytes(name string, data []byte) bool {
	return b.submit(name, func() []byte { return encodeBytes(name, data) })
}

// SendStringList asynchronously sends a list of strings labelled name. The
// items are copied before the call returns; empty strings round-trip.
// Reports false when no connection is live.
func (b *base) SendStringList(name string, items []string) bool {
	return b.submit(name, func() []byte { return encodeStringList(name, items) })
}

// SetCallbacks replaces the receive handlers. The change takes effect for
// subsequent dispatches; a dispatch already in progress keeps the snapshot it
// started with.
func (b *base) SetCallbacks(cbs Callbacks) {
	b.callbacks.Store(&cbs)
}

// IsConnected reports whether a connection is currently live.
func (b *base) IsConnected() bool {
	return b.liveID.Load() != 0
}

// Disconnect tears down the live connection, if any, firing its disconnect
// notification. It never blocks, even with a full op queue, so callbacks
// running on the engine goroutine may call it freely. The endpoint stays
// usable for a new connection afterwards.
func (b *base) Disconnect() {
	select {
	case b.disc <- struct{}{}:
	default: // a teardown request is already pending
	}
}
