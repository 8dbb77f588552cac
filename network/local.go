package network

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

// localRegistry tracks which local (in-process FIFO-like) endpoints are
// currently listening, backed by net.Pipe duplex connections.
type localRegistry struct {
	mu        sync.Mutex
	listeners map[string]chan net.Conn
}

var defaultLocalRegistry = &localRegistry{listeners: make(map[string]chan net.Conn)}

var localCounter uint64

func (r *localRegistry) register(name string) chan net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan net.Conn)
	r.listeners[name] = ch
	return ch
}

func (r *localRegistry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, name)
}

func (r *localRegistry) lookup(name string) (chan net.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.listeners[name]
	return ch, ok
}

type localEndpoint struct {
	name   string
	accept chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newLocalEndpoint() (Endpoint, error) {
	id := atomic.AddUint64(&localCounter, 1)
	name := fmt.Sprintf("%sproc-%d", prefixLocal, id)
	return &localEndpoint{
		name:   name,
		accept: defaultLocalRegistry.register(name),
		closed: make(chan struct{}),
	}, nil
}

func (e *localEndpoint) Name() string { return e.name }

func (e *localEndpoint) Accept() (Channel, error) {
	select {
	case conn, ok := <-e.accept:
		if !ok {
			return nil, wrapErr("accept-local", xerrors.New("endpoint closed"))
		}
		return &localChannel{conn: conn, remote: e.name}, nil
	case <-e.closed:
		return nil, wrapErr("accept-local", xerrors.New("endpoint closed"))
	}
}

func (e *localEndpoint) Close() error {
	e.once.Do(func() {
		defaultLocalRegistry.unregister(e.name)
		close(e.closed)
	})
	return nil
}

func connectLocal(address string) (Channel, error) {
	ch, ok := defaultLocalRegistry.lookup(address)
	if !ok {
		return nil, wrapErr("connect-local", xerrors.Errorf("no listener at %s", address))
	}
	client, server := net.Pipe()
	ch <- server
	return &localChannel{conn: client, remote: address}, nil
}

// localChannel implements Channel over net.Pipe, which already gives a
// synchronous, reliable, in-memory duplex byte stream without needing a
// real socket for same-host app-to-spawn rendezvous.
type localChannel struct {
	conn net.Conn

	remote string

	closeMu sync.Mutex
	closed  bool
}

func (c *localChannel) Remote() string { return c.remote }

func (c *localChannel) Read(buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := c.conn.Read(buf[total:])
		if err != nil {
			return wrapErr("read-local", err)
		}
		total += n
	}
	return nil
}

func (c *localChannel) Write(buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := c.conn.Write(buf[total:])
		if err != nil {
			return wrapErr("write-local", err)
		}
		total += n
	}
	return nil
}

func (c *localChannel) Disconnect() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return wrapErr("disconnect-local", c.conn.Close())
}
