package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rillstream/rill-go/pkg/log"
)

// ErrConnectionClosed indicates an operation on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// DialerConfig configures a Rill client dialer.
type DialerConfig struct {
	// TLSConfig contains TLS settings. Required.
	TLSConfig *TLSConfig

	// MaxMessageSize is the maximum message size (default: 256 KB).
	MaxMessageSize uint32

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// Logger receives transport-level protocol events (optional).
	Logger log.Logger
}

// Dialer establishes connections to a Rill backend.
type Dialer struct {
	config  DialerConfig
	tlsConf *tls.Config
}

// NewDialer creates a new Rill client dialer.
func NewDialer(config DialerConfig) (*Dialer, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConf, err := NewClientTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Dialer{
		config:  config,
		tlsConf: tlsConf,
	}, nil
}

// Connect establishes a connection to the specified address.
func (d *Dialer) Connect(ctx context.Context, address string) (*Conn, error) {
	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ConnectTimeout)
		defer cancel()
	}

	// Dial TCP connection
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	// TLS handshake
	tlsConn := tls.Client(conn, d.tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	// Verify TLS version and ALPN
	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("connection verification failed: %w", err)
	}

	connID := uuid.NewString()
	framer := NewFramerWithMaxSize(tlsConn, d.config.MaxMessageSize)
	if d.config.Logger != nil {
		framer.SetLogger(d.config.Logger, connID)
	}

	return &Conn{
		id:       connID,
		conn:     tlsConn,
		framer:   framer,
		tlsState: state,
		closeCh:  make(chan struct{}),
	}, nil
}

// Conn represents a client connection to a Rill backend.
type Conn struct {
	id       string
	conn     *tls.Conn
	framer   *Framer
	tlsState tls.ConnectionState
	closeCh  chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// ID returns the unique identifier assigned to this connection.
func (c *Conn) ID() string {
	return c.id
}

// TLSState returns the TLS connection state.
func (c *Conn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send sends a message to the backend.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	return c.framer.WriteFrame(data)
}

// Receive receives a message from the backend with timeout.
// A zero timeout blocks until a message arrives or the connection closes.
func (c *Conn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadFrame()
}

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
