// Package discovery finds Rill backend nodes on the local network via
// mDNS. Nodes announce themselves under the _rill._tcp service type
// with TXT metadata (node id, cluster name, protocol version, optional
// certificate fingerprint for pinning).
//
// The SDK only browses; announcing is the backend's job.
package discovery
