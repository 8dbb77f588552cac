// Package network implements the transport abstraction the launcher
// runs every protocol over, plus the wire codec used to
// frame strings and string-keyed maps on top of it.
//
// A passive Endpoint Accept()s Channels; Channels are connected,
// reliable, ordered, and read/write an exact number of bytes or fail.
package network

import (
	"strings"

	"golang.org/x/xerrors"
)

// Kind identifies which transport driver backs an address.
type Kind string

// The two transport kinds the core requires: a TCP-like
// kind used between hosts, and a local FIFO-like kind used for
// same-node app-to-spawn rendezvous.
const (
	KindTCP   Kind = "tcp"
	KindLocal Kind = "local"
)

const (
	prefixTCP   = "tcp://"
	prefixLocal = "local://"
)

// Error is returned for any transport-level failure: an unparseable
// address, an unreachable peer, or a short read/write.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "transport: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// KindOf infers the transport kind from an address by its prefix
// convention.
func KindOf(address string) (Kind, error) {
	switch {
	case strings.HasPrefix(address, prefixTCP):
		return KindTCP, nil
	case strings.HasPrefix(address, prefixLocal):
		return KindLocal, nil
	default:
		return "", wrapErr("kind-of", xerrors.Errorf("unrecognized address %q", address))
	}
}

// Endpoint is a passive listener bound to a transport-supplied address.
type Endpoint interface {
	// Name returns the printable address other processes connect to.
	Name() string
	// Accept blocks until a client connects and returns the resulting
	// Channel.
	Accept() (Channel, error)
	// Close releases the listener. Idempotent.
	Close() error
}

// Channel is a reliable, ordered, duplex byte stream between two
// endpoints. At most one concurrent writer and one concurrent reader is
// assumed per direction.
type Channel interface {
	// Remote returns the printable name of the peer endpoint, when known.
	Remote() string
	// Read fills buf entirely or returns a transport Error; no partial
	// reads are exposed to the caller.
	Read(buf []byte) error
	// Write sends buf entirely or returns a transport Error.
	Write(buf []byte) error
	// Disconnect closes the channel. Idempotent.
	Disconnect() error
}

// Open creates a new passive Endpoint of the given kind.
func Open(kind Kind) (Endpoint, error) {
	switch kind {
	case KindTCP:
		return newTCPEndpoint()
	case KindLocal:
		return newLocalEndpoint()
	default:
		return nil, wrapErr("open", xerrors.Errorf("unknown transport kind %q", kind))
	}
}

// Connect dials the given address, inferring the transport kind from
// its prefix.
func Connect(address string) (Channel, error) {
	kind, err := KindOf(address)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindTCP:
		return connectTCP(address)
	case KindLocal:
		return connectLocal(address)
	default:
		return nil, wrapErr("connect", xerrors.Errorf("unknown transport kind %q", kind))
	}
}

// Disconnect closes ch. It is a no-op on a nil Channel, so callers can
// tear down partially-built trees without nil checks at every call site.
func Disconnect(ch Channel) error {
	if ch == nil {
		return nil
	}
	return ch.Disconnect()
}
