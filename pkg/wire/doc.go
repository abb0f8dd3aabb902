// Package wire defines the CBOR wire format types for the Rill realtime
// protocol.
//
// Rill uses CBOR (RFC 8949) with integer keys for efficient encoding.
// All messages are length-prefixed and transmitted over TLS 1.3.
//
// # Message Types
//
// There are three message types on a client connection:
//   - Query: client to backend (subscribe on/off, count)
//   - Response: backend to client, correlated by message ID
//   - Notification: backend to client, pushed on a room channel
//
// # Message ID Zero
//
// Queries carry a non-zero message ID and receive exactly one Response with
// the same ID. Notifications carry message ID zero and a room ID instead;
// DecodeEnvelope uses this to classify inbound frames.
//
// # Filters
//
// Subscription filters are an opaque value of the backend's filter DSL. The
// SDK encodes whatever the caller supplies and never interprets it.
package wire
