// Package termsock implements a bidirectional, typed, named package protocol
// over a single TCP connection. One endpoint listens (Server), the other
// connects (Client); both can send and receive four kinds of packages: a
// single string, a single int32, a raw byte block, or a list of strings.
//
// Sends are asynchronous: they return as soon as the encoded package has been
// handed to the endpoint's engine goroutine, which owns all socket I/O.
// Received packages are dispatched through registered callbacks on that same
// goroutine. At most one connection is live per endpoint at any time;
// establishing a new one tears the old one down first, and every connection
// fires its disconnect notification exactly once.
package termsock

// PackageType identifies the payload kind of a package on the wire.
type PackageType uint8

// Package types, in wire ordinal order.
const (
	SingleString PackageType = iota
	SingleInt
	Bytes
	ListOfStrings

	packageTypeCount
)

// String returns a human-readable name for the package type.
func (t PackageType) String() string {
	switch t {
	case SingleString:
		return "SingleString"
	case SingleInt:
		return "SingleInt"
	case Bytes:
		return "Bytes"
	case ListOfStrings:
		return "ListOfStrings"
	default:
		return "Unknown"
	}
}

// preamble marks the start of every package on the wire.
const preamble = 0xCE

// Callbacks holds the handlers invoked when a complete package arrives. Any
// field may be nil; packages of that kind are then dropped silently. Handlers
// run on the endpoint's engine goroutine and must not block: all further
// socket I/O on the endpoint stalls until they return. Payload slices passed
// to handlers are views into the receive buffer and are valid only for the
// duration of the call. Handlers may send, Disconnect, or re-arm StartAccept,
// but must not call Connect or Close, which wait on the engine goroutine they
// would be running on.
type Callbacks struct {
	// OnString is invoked for SingleString packages.
	OnString func(name string, value string)

	// OnInt32 is invoked for SingleInt packages.
	OnInt32 func(name string, value int32)

	// OnBytes is invoked for Bytes packages. data may be empty.
	OnBytes func(name string, data []byte)

	// OnStringList is invoked for ListOfStrings packages. items may contain
	// empty strings and may itself be empty.
	OnStringList func(name string, items []string)
}

// DisconnectFunc is called exactly once when a connection has fully torn
// down, regardless of which side or which error caused it. It runs on the
// engine goroutine; no other callback for that connection fires afterwards.
type DisconnectFunc func()
