package transport

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// TLS constants for the Rill protocol.
const (
	// ALPNProtocol is the ALPN protocol identifier for Rill.
	ALPNProtocol = "rill/1"

	// DefaultPort is the default Rill backend port.
	DefaultPort = 7512
)

// TLSConfig holds configuration for Rill client connections.
type TLSConfig struct {
	// RootCAs is the pool of trusted CA certificates for verifying the
	// backend. Nil uses the system pool.
	RootCAs *x509.CertPool

	// ServerName is the expected server name for certificate verification.
	ServerName string

	// PinSHA256 is an optional SHA-256 fingerprint of the backend's leaf
	// certificate. When set, the presented certificate must match the pin
	// in addition to (or, with InsecureSkipVerify, instead of) chain
	// verification. Useful for backends discovered on the local network.
	PinSHA256 []byte

	// InsecureSkipVerify disables chain verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool
}

// NewClientTLSConfig creates a TLS configuration for a Rill client.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.PinSHA256) > 0 && len(cfg.PinSHA256) != sha256.Size {
		return nil, fmt.Errorf("PinSHA256 must be %d bytes, got %d", sha256.Size, len(cfg.PinSHA256))
	}

	tlsConfig := &tls.Config{
		// TLS 1.3 only - no fallback
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,

		// CA pool for verifying the backend certificate
		RootCAs: cfg.RootCAs,

		// Server name for verification
		ServerName: cfg.ServerName,

		// ALPN protocol
		NextProtos: []string{ALPNProtocol},

		// Curve preferences for key exchange
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		// Session tickets disabled (no resumption)
		SessionTicketsDisabled: true,

		// For testing only
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if len(cfg.PinSHA256) > 0 {
		pin := cfg.PinSHA256
		tlsConfig.VerifyPeerCertificate = func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("no peer certificate presented")
			}
			sum := sha256.Sum256(rawCerts[0])
			if !bytes.Equal(sum[:], pin) {
				return fmt.Errorf("certificate fingerprint mismatch")
			}
			return nil
		}
	}

	return tlsConfig, nil
}

// CertFingerprint computes the SHA-256 fingerprint of a certificate,
// suitable for TLSConfig.PinSHA256.
func CertFingerprint(cert *x509.Certificate) []byte {
	sum := sha256.Sum256(cert.Raw)
	return sum[:]
}

// VerifyConnection checks that an established connection satisfies the
// protocol requirements: TLS 1.3 and the Rill ALPN protocol.
func VerifyConnection(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("TLS version %x, protocol requires TLS 1.3", state.Version)
	}
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("ALPN protocol %q, want %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}
