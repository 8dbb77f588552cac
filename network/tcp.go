package network

import (
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

// dialTimeout bounds how long Connect waits to reach a TCP peer.
var dialTimeout = 30 * time.Second

type tcpEndpoint struct {
	ln   net.Listener
	name string
}

func newTCPEndpoint() (Endpoint, error) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return nil, wrapErr("open-tcp", xerrors.Errorf("listen: %w", err))
	}
	return &tcpEndpoint{ln: ln, name: prefixTCP + ln.Addr().String()}, nil
}

func (e *tcpEndpoint) Name() string { return e.name }

func (e *tcpEndpoint) Accept() (Channel, error) {
	conn, err := e.ln.Accept()
	if err != nil {
		return nil, wrapErr("accept-tcp", err)
	}
	return &tcpChannel{conn: conn}, nil
}

func (e *tcpEndpoint) Close() error {
	err := e.ln.Close()
	if xerrors.Is(err, net.ErrClosed) {
		return nil
	}
	return wrapErr("close-tcp", err)
}

func connectTCP(address string) (Channel, error) {
	netAddr := address[len(prefixTCP):]
	conn, err := net.DialTimeout("tcp", netAddr, dialTimeout)
	if err != nil {
		return nil, wrapErr("connect-tcp", xerrors.Errorf("dial %s: %w", netAddr, err))
	}
	return &tcpChannel{conn: conn}, nil
}

// tcpChannel implements Channel over a plain net.Conn. Reads and writes
// transfer exactly the requested number of bytes or fail; framing is at
// the caller's chosen boundaries (string/map codec, or raw signal bytes)
// rather than a single self-describing envelope.
type tcpChannel struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func (c *tcpChannel) Remote() string {
	return prefixTCP + c.conn.RemoteAddr().String()
}

func (c *tcpChannel) Read(buf []byte) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	_, err := io.ReadFull(c.conn, buf)
	if err != nil {
		return wrapErr("read-tcp", err)
	}
	return nil
}

func (c *tcpChannel) Write(buf []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	var sent int
	for sent < len(buf) {
		n, err := c.conn.Write(buf[sent:])
		if err != nil {
			return wrapErr("write-tcp", err)
		}
		sent += n
	}
	return nil
}

func (c *tcpChannel) Disconnect() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return wrapErr("disconnect-tcp", c.conn.Close())
}
