// Package transport implements the framed TLS transport for the Rill
// realtime protocol and the room channel hub.
//
// A connection carries length-prefixed CBOR frames over TLS 1.3 with
// ALPN "rill/1". The Dialer establishes client connections; Conn provides
// Send/Receive over the framing layer.
//
// The Hub is the duplex-channel registry: notification handlers are bound
// to backend-assigned room ids with On, detached with Off, and inbound
// notifications are routed to the matching handler by Dispatch. A room id
// has at most one handler; binding an id again replaces the previous
// handler.
package transport
