// Package gateway provides the request/response layer of the client.
//
// A Client assigns message IDs, attaches volatile metadata, encodes
// queries, and routes incoming responses back to the handler registered
// for the matching message ID. Notifications (message ID 0) are handed
// to a notification sink, typically a transport.Hub.
//
// All delivery is callback-based. Handlers run on the goroutine that
// feeds responses into the client, usually the Listen read loop.
package gateway
