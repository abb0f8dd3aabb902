package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// Connection represents a client-side connection to a Rill backend.
// Implemented by Conn.
type Connection interface {
	// ID returns the unique identifier assigned to this connection.
	ID() string

	// TLSState returns the TLS connection state.
	TLSState() tls.ConnectionState

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Send sends a message to the backend.
	Send(data []byte) error

	// Receive receives a message with the specified timeout.
	Receive(timeout time.Duration) ([]byte, error)

	// Close closes the connection.
	Close() error
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Connection      = (*Conn)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
