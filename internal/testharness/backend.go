// Package testharness provides an in-process backend that speaks the
// real wire format over a net.Pipe connection, for integration tests.
//
// The backend implements the subscribe controller: subscribe queries
// create a room and return its identity, count queries report the
// room's subscriber count, unsubscribe queries remove the room. Tests
// drive notifications explicitly through Notify and NotifyError.
package testharness

import (
	"fmt"
	"net"
	"sync"

	"github.com/rillstream/rill-go/pkg/transport"
	"github.com/rillstream/rill-go/pkg/wire"
)

type room struct {
	name       string
	collection string
	count      int
}

// Backend is an in-process Rill backend serving one connection.
type Backend struct {
	clientConn net.Conn
	serverConn net.Conn
	framer     *transport.Framer

	mu       sync.Mutex
	rooms    map[string]*room
	nextRoom int
	reject   []wire.Status

	writeMu sync.Mutex

	done chan struct{}
}

// NewBackend creates a backend bridged to the client over a net.Pipe.
func NewBackend() *Backend {
	clientConn, serverConn := net.Pipe()
	return &Backend{
		clientConn: clientConn,
		serverConn: serverConn,
		framer:     transport.NewFramer(serverConn),
		rooms:      make(map[string]*room),
		done:       make(chan struct{}),
	}
}

// ClientConn returns the client side of the pipe. Wrap it in a framer
// to talk to the backend.
func (b *Backend) ClientConn() net.Conn {
	return b.clientConn
}

// Start begins serving queries.
func (b *Backend) Start() {
	go b.serve()
}

// Stop closes both pipe ends and waits for the serve loop to exit.
func (b *Backend) Stop() {
	_ = b.serverConn.Close()
	_ = b.clientConn.Close()
	<-b.done
}

// RejectNext makes the backend answer the next query with the given
// error status instead of processing it.
func (b *Backend) RejectNext(status wire.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject = append(b.reject, status)
}

// SetRoomCount overrides the subscriber count reported for a room.
func (b *Backend) SetRoomCount(roomID string, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rooms[roomID]; ok {
		r.count = count
	}
}

// RoomIDs returns the ids of all live rooms.
func (b *Backend) RoomIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.rooms))
	for id := range b.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Notify pushes a notification on the given room channel.
func (b *Backend) Notify(roomID string, result *wire.NotificationResult) error {
	return b.sendNotification(&wire.Notification{RoomID: roomID, Result: result})
}

// NotifyError pushes an error notification on the given room channel.
func (b *Backend) NotifyError(roomID string, errPayload *wire.ErrorPayload) error {
	return b.sendNotification(&wire.Notification{RoomID: roomID, Error: errPayload})
}

func (b *Backend) sendNotification(notif *wire.Notification) error {
	data, err := wire.EncodeNotification(notif)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.framer.WriteFrame(data)
}

func (b *Backend) serve() {
	defer close(b.done)

	for {
		data, err := b.framer.ReadFrame()
		if err != nil {
			return
		}

		query, err := wire.DecodeQuery(data)
		if err != nil {
			continue
		}

		resp := b.handle(query)
		out, err := wire.EncodeResponse(resp)
		if err != nil {
			continue
		}

		b.writeMu.Lock()
		err = b.framer.WriteFrame(out)
		b.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (b *Backend) handle(query *wire.Query) *wire.Response {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.reject) > 0 {
		status := b.reject[0]
		b.reject = b.reject[1:]
		return &wire.Response{
			MessageID: query.MessageID,
			Status:    status,
			Error:     &wire.ErrorPayload{Code: uint16(status), Message: status.String()},
		}
	}

	switch query.Verb {
	case wire.VerbOn:
		b.nextRoom++
		roomID := fmt.Sprintf("room-%d", b.nextRoom)
		roomName := "sub-" + query.Collection
		b.rooms[roomID] = &room{name: roomName, collection: query.Collection, count: 1}
		return &wire.Response{
			MessageID: query.MessageID,
			Status:    wire.StatusSuccess,
			Result:    &wire.Result{RoomID: roomID, RoomName: roomName},
		}

	case wire.VerbOff:
		roomID := bodyString(query.Body, 1)
		if _, ok := b.rooms[roomID]; !ok {
			return notFound(query.MessageID)
		}
		delete(b.rooms, roomID)
		return &wire.Response{MessageID: query.MessageID, Status: wire.StatusSuccess}

	case wire.VerbCount:
		roomID := bodyString(query.Body, 1)
		r, ok := b.rooms[roomID]
		if !ok {
			return notFound(query.MessageID)
		}
		return &wire.Response{
			MessageID: query.MessageID,
			Status:    wire.StatusSuccess,
			Result:    &wire.Result{Count: r.count},
		}

	default:
		return &wire.Response{
			MessageID: query.MessageID,
			Status:    wire.StatusBadRequest,
			Error:     &wire.ErrorPayload{Message: "unknown verb"},
		}
	}
}

func notFound(messageID uint32) *wire.Response {
	return &wire.Response{
		MessageID: messageID,
		Status:    wire.StatusNotFound,
		Error:     &wire.ErrorPayload{Message: "no such room"},
	}
}

// bodyString extracts a string field from a decoded query body.
func bodyString(body any, key uint64) string {
	m, ok := body.(map[any]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
