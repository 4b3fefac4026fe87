package termsock

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/metavision/termlink/logger"
)

// receiverState tracks which part of the current package is being assembled.
type receiverState uint8

const (
	awaitPreamble receiverState = iota
	awaitType
	awaitName
	awaitSize
	awaitContent
)

const (
	// readChunkSize is the size of each read into the transport buffer.
	readChunkSize = 64 * 1024

	// maxPackageSize caps the name and the content of a single package. A
	// peer exceeding it is considered broken and the connection is torn down.
	maxPackageSize = 16 * 1024 * 1024

	// growWarnThreshold is the accumulated-buffer size above which a warning
	// is logged each time the threshold doubles. Persistent growth means
	// packages keep arriving partially and memory is being held between reads.
	growWarnThreshold = 4 * readChunkSize
)

// dispatchFunc receives one fully assembled package. name and content are
// views into the receive buffer, valid only for the duration of the call.
type dispatchFunc func(typ PackageType, name []byte, content []byte)

// receiver is the incremental parser for the package stream. It is owned by
// the engine goroutine of its connection and must not be shared. Feed may be
// called with arbitrary chunks of the stream; parser state persists between
// calls so packages split across reads reassemble correctly, and multiple
// packages in one chunk all dispatch in order.
type receiver struct {
	log      logger.Logger
	dispatch dispatchFunc

	buf []byte        // accumulated unconsumed stream bytes
	pos int           // scan position within buf
	st  receiverState // current parsing state

	typ          PackageType
	nameStart    int // index of the first name byte in buf
	nameEnd      int // index of the name's NUL terminator
	contentSize  int
	contentStart int

	warnAt int // next buffer size that triggers a growth warning
}

func newReceiver(log logger.Logger, dispatch dispatchFunc) *receiver {
	return &receiver{
		log:      log,
		dispatch: dispatch,
		buf:      make([]byte, 0, readChunkSize),
		warnAt:   growWarnThreshold,
	}
}

// feed consumes one chunk of stream bytes, dispatching every package that
// completes. It returns an error only for unrecoverable framing problems
// (oversized name or content); the caller is expected to tear the connection
// down. Unknown type bytes and garbage before a preamble resynchronize by
// scanning for the next preamble instead.
func (r *receiver) feed(data []byte) error {
	r.buf = append(r.buf, data...)
	if len(r.buf) >= r.warnAt {
		r.log.Warn("receive buffer enlarged", logger.Field{Key: "size", Value: len(r.buf)})
		r.warnAt *= 2
	}

	for {
		switch r.st {
		case awaitPreamble:
			i := bytes.IndexByte(r.buf[r.pos:], preamble)
			if i < 0 {
				if skipped := len(r.buf) - r.pos; skipped > 0 {
					r.log.Debug("skipped bytes before preamble", logger.Field{Key: "count", Value: skipped})
				}
				r.reset()
				return nil
			}
			if i > 0 {
				r.log.Debug("skipped bytes before preamble", logger.Field{Key: "count", Value: i})
			}
			r.compact(r.pos + i + 1) // drop garbage and the preamble byte itself
			r.st = awaitType

		case awaitType:
			if r.pos >= len(r.buf) {
				return nil
			}
			b := r.buf[r.pos]
			if b >= byte(packageTypeCount) {
				r.log.Warn("invalid package type byte", logger.Field{Key: "value", Value: b})
				r.compact(r.pos + 1)
				r.st = awaitPreamble
				continue
			}
			r.typ = PackageType(b)
			r.pos++
			r.nameStart = r.pos
			r.st = awaitName

		case awaitName:
			i := bytes.IndexByte(r.buf[r.pos:], 0)
			if i < 0 {
				r.pos = len(r.buf)
				if r.pos-r.nameStart > maxPackageSize {
					return fmt.Errorf("package name exceeds %d bytes", maxPackageSize)
				}
				return nil
			}
			r.nameEnd = r.pos + i
			r.pos = r.nameEnd + 1
			r.st = awaitSize

		case awaitSize:
			if len(r.buf)-r.pos < 4 {
				return nil
			}
			size := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
			if size > maxPackageSize {
				return fmt.Errorf("package content of %d bytes exceeds %d byte limit", size, maxPackageSize)
			}
			r.contentSize = int(size)
			r.pos += 4
			r.contentStart = r.pos
			r.st = awaitContent

		case awaitContent:
			if len(r.buf)-r.contentStart < r.contentSize {
				r.pos = len(r.buf)
				return nil
			}
			end := r.contentStart + r.contentSize
			r.dispatch(r.typ, r.buf[r.nameStart:r.nameEnd], r.buf[r.contentStart:end])
			r.compact(end)
			r.st = awaitPreamble
		}
	}
}

// compact discards everything before index n, keeping any bytes of the next
// package already received.
func (r *receiver) compact(n int) {
	rest := r.buf[n:]
	r.buf = append(r.buf[:0], rest...)
	r.pos = 0
	if len(r.buf) == 0 && r.warnAt > growWarnThreshold {
		r.warnAt = growWarnThreshold
	}
}

// reset drops all buffered bytes.
func (r *receiver) reset() {
	r.buf = r.buf[:0]
	r.pos = 0
	if r.warnAt > growWarnThreshold {
		r.warnAt = growWarnThreshold
	}
}
