package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the mDNS service type backend nodes announce.
	ServiceType = "_rill._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record key constants.
const (
	TXTKeyNodeID      = "NI" // Node id (required)
	TXTKeyCluster     = "CL" // Cluster name (optional)
	TXTKeyVersion     = "PV" // Protocol version "major.minor" (required)
	TXTKeyFingerprint = "FP" // SHA-256 certificate fingerprint, hex (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Discovery errors.
var (
	ErrMissingRequired    = errors.New("missing required TXT record")
	ErrInvalidVersion     = errors.New("invalid protocol version")
	ErrInvalidFingerprint = errors.New("invalid certificate fingerprint")
	ErrNotFound           = errors.New("service not found")
)

// NodeInfo is the metadata a backend node announces in its TXT records.
type NodeInfo struct {
	// NodeID uniquely identifies the node within its cluster.
	NodeID string

	// Cluster is the cluster name, empty for standalone nodes.
	Cluster string

	// Version is the protocol version, "major.minor".
	Version string

	// Fingerprint is the SHA-256 fingerprint of the node's TLS
	// certificate, for pinned connections. Nil when not announced.
	Fingerprint []byte
}

// Service is a discovered backend node.
type Service struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the announced hostname.
	Host string

	// Port is the announced port.
	Port uint16

	// Addresses holds the resolved IP addresses, aggregated across
	// interfaces.
	Addresses []string

	// NodeInfo is the decoded TXT metadata.
	NodeInfo
}
