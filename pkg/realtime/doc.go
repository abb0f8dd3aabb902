// Package realtime implements the client-side subscription room.
//
// A Room manages one logical realtime subscription: it establishes the
// subscription through the gateway, binds a notification handler to the
// transport under the backend-assigned room id, classifies inbound
// notifications (lifecycle vs data), and exposes Renew, Count and
// Unsubscribe.
//
// A Room serializes its own lifecycle operations: while a subscribe or
// unsubscribe request is in flight, further Renew, Count and Unsubscribe
// calls are queued and replayed in arrival order once the in-flight
// request completes.
//
// Lifecycle notifications (a peer joining or leaving the room) fan out
// to a Registry of listeners shared across rooms, in addition to the
// room's own handler.
package realtime
