// Package forwarder owns the outbound UDP socket that carries OSC packets to the console.
package forwarder

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/bbernstein/dmx-osc-bridge/internal/logging"
)

// ErrShortWrite is returned when the socket accepted fewer bytes than the packet holds.
var ErrShortWrite = errors.New("forwarder: short write")

// Conn is the part of *net.UDPConn the forwarder uses.
type Conn interface {
	io.WriteCloser
	RemoteAddr() net.Addr
}

// Forwarder sends already-encoded packets over one connected UDP socket.
// Send is safe for concurrent use; at most one write is in flight at a time.
type Forwarder struct {
	mu     sync.Mutex
	conn   Conn
	closed bool
}

// Dial binds an ephemeral local port and connects it to host:port.
func Dial(host string, port int) (*Forwarder, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve OSC destination %s: %w", address, err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect UDP socket to %s: %w", address, err)
	}

	logging.Infof("📡 OSC forwarder connected %s -> %s", conn.LocalAddr(), conn.RemoteAddr())
	return New(conn), nil
}

// New wraps an existing connection.
func New(conn Conn) *Forwarder {
	return &Forwarder{conn: conn}
}

// Send writes one packet as a single datagram. Failures are returned to the caller
// and never retried.
func (f *Forwarder) Send(packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("send OSC packet: %w", net.ErrClosed)
	}

	n, err := f.conn.Write(packet)
	if err != nil {
		return fmt.Errorf("send OSC packet: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("send OSC packet: %w (%d of %d bytes)", ErrShortWrite, n, len(packet))
	}

	logging.Tracef("Sent OSC message: %d bytes", n)
	return nil
}

// RemoteAddr returns the destination address.
func (f *Forwarder) RemoteAddr() string {
	if addr := f.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close closes the socket. Later sends fail with net.ErrClosed.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.conn.Close()
}
