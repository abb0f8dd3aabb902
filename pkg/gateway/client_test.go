package gateway_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rillstream/rill-go/pkg/gateway"
	"github.com/rillstream/rill-go/pkg/wire"
)

// captureSender records every frame handed to Send.
type captureSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *captureSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *captureSender) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

// queueReceiver feeds a fixed sequence of frames, then fails.
type queueReceiver struct {
	frames [][]byte
	err    error
}

func (r *queueReceiver) Receive(timeout time.Duration) ([]byte, error) {
	if len(r.frames) == 0 {
		return nil, r.err
	}
	frame := r.frames[0]
	r.frames = r.frames[1:]
	return frame, nil
}

// captureSink records dispatched notifications.
type captureSink struct {
	notifs []*wire.Notification
}

func (s *captureSink) Dispatch(notif *wire.Notification) bool {
	s.notifs = append(s.notifs, notif)
	return true
}

func decodeSent(t *testing.T, data []byte) *wire.Query {
	t.Helper()
	q, err := wire.DecodeQuery(data)
	require.NoError(t, err)
	return q
}

func TestQuery_AssignsUniqueMessageIDs(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	for i := 0; i < 3; i++ {
		err := client.Count("users", "room-1", nil)
		require.NoError(t, err)
	}

	frames := sender.sent()
	require.Len(t, frames, 3)

	seen := make(map[uint32]bool)
	for _, frame := range frames {
		q := decodeSent(t, frame)
		assert.NotEqual(t, wire.NotificationMessageID, q.MessageID)
		assert.False(t, seen[q.MessageID], "message ID %d reused", q.MessageID)
		seen[q.MessageID] = true
	}
}

func TestQuery_AttachesVolatileMetadata(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)
	client.SetVolatile("clientName", "test-app")

	err := client.Subscribe("users", map[string]any{"term": "x"}, false, nil)
	require.NoError(t, err)

	q := decodeSent(t, sender.sent()[0])
	assert.Equal(t, "test-app", q.Volatile["clientName"])
	assert.NotEmpty(t, q.Volatile["sdkVersion"])
}

func TestQuery_CallerVolatileWins(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	err := client.Query(&wire.Query{
		Controller: wire.ControllerSubscribe,
		Verb:       wire.VerbCount,
		Collection: "users",
		Volatile:   map[string]any{"sdkVersion": "custom"},
	}, nil)
	require.NoError(t, err)

	q := decodeSent(t, sender.sent()[0])
	assert.Equal(t, "custom", q.Volatile["sdkVersion"])
}

func TestSubscribe_BuildsQuery(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	err := client.Subscribe("messages", map[string]any{"equals": "a"}, true, nil)
	require.NoError(t, err)

	q := decodeSent(t, sender.sent()[0])
	assert.Equal(t, wire.ControllerSubscribe, q.Controller)
	assert.Equal(t, wire.VerbOn, q.Verb)
	assert.Equal(t, "messages", q.Collection)

	body, ok := q.Body.(map[any]any)
	require.True(t, ok, "body type %T", q.Body)
	assert.Equal(t, true, body[uint64(2)])
}

func TestUnsubscribe_BuildsQuery(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	err := client.Unsubscribe("messages", "room-42", nil)
	require.NoError(t, err)

	q := decodeSent(t, sender.sent()[0])
	assert.Equal(t, wire.VerbOff, q.Verb)

	body, ok := q.Body.(map[any]any)
	require.True(t, ok, "body type %T", q.Body)
	assert.Equal(t, "room-42", body[uint64(1)])
}

func TestHandleResponse_RoutesToHandler(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	var got *wire.Response
	err := client.Count("users", "room-1", func(resp *wire.Response, err error) {
		require.NoError(t, err)
		got = resp
	})
	require.NoError(t, err)

	q := decodeSent(t, sender.sent()[0])
	resp := &wire.Response{
		MessageID: q.MessageID,
		Status:    wire.StatusSuccess,
		Result:    &wire.Result{Count: 7},
	}

	require.NoError(t, client.HandleResponse(resp))
	require.NotNil(t, got)
	assert.Equal(t, 7, got.Result.Count)

	// A second response under the same ID is unexpected.
	err = client.HandleResponse(resp)
	assert.ErrorIs(t, err, gateway.ErrUnexpectedReply)
}

func TestHandleResponse_NilHandlerConsumed(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	require.NoError(t, client.Unsubscribe("users", "room-1", nil))

	q := decodeSent(t, sender.sent()[0])
	err := client.HandleResponse(&wire.Response{
		MessageID: q.MessageID,
		Status:    wire.StatusSuccess,
	})
	assert.NoError(t, err)
}

func TestHandleResponse_UnknownID(t *testing.T) {
	client := gateway.NewClient(&captureSender{})

	err := client.HandleResponse(&wire.Response{MessageID: 99, Status: wire.StatusSuccess})
	assert.ErrorIs(t, err, gateway.ErrUnexpectedReply)
}

func TestQuery_SendFailureLeavesNoPending(t *testing.T) {
	sendErr := errors.New("broken pipe")
	sender := &captureSender{err: sendErr}
	client := gateway.NewClient(sender)

	called := false
	err := client.Count("users", "room-1", func(resp *wire.Response, err error) {
		called = true
	})
	assert.ErrorIs(t, err, sendErr)
	assert.False(t, called, "handler must not run for a failed send")

	// The failed query's ID must not linger in the pending map.
	err = client.HandleResponse(&wire.Response{MessageID: 1, Status: wire.StatusSuccess})
	assert.ErrorIs(t, err, gateway.ErrUnexpectedReply)
}

func TestClose_RejectsPending(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	var gotErr error
	require.NoError(t, client.Count("users", "room-1", func(resp *wire.Response, err error) {
		gotErr = err
	}))

	require.NoError(t, client.Close())
	assert.ErrorIs(t, gotErr, gateway.ErrClientClosed)

	// Queries after close are rejected outright.
	err := client.Count("users", "room-1", nil)
	assert.ErrorIs(t, err, gateway.ErrClientClosed)
}

func TestListen_DemultiplexesMessages(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	var got *wire.Response
	require.NoError(t, client.Count("users", "room-1", func(resp *wire.Response, err error) {
		require.NoError(t, err)
		got = resp
	}))
	q := decodeSent(t, sender.sent()[0])

	respData, err := wire.EncodeResponse(&wire.Response{
		MessageID: q.MessageID,
		Status:    wire.StatusSuccess,
		Result:    &wire.Result{Count: 3},
	})
	require.NoError(t, err)

	notifData, err := wire.EncodeNotification(&wire.Notification{
		RoomID: "room-1",
		Result: &wire.NotificationResult{Action: wire.ActionPublish},
	})
	require.NoError(t, err)

	sink := &captureSink{}
	recv := &queueReceiver{frames: [][]byte{respData, notifData}, err: io.EOF}

	err = client.Listen(recv, sink)
	assert.ErrorIs(t, err, io.EOF)

	require.NotNil(t, got)
	assert.Equal(t, 3, got.Result.Count)

	require.Len(t, sink.notifs, 1)
	assert.Equal(t, "room-1", sink.notifs[0].RoomID)
}

func TestListen_RejectsPendingOnReadError(t *testing.T) {
	sender := &captureSender{}
	client := gateway.NewClient(sender)

	readErr := errors.New("connection reset")
	var gotErr error
	require.NoError(t, client.Count("users", "room-1", func(resp *wire.Response, err error) {
		gotErr = err
	}))

	err := client.Listen(&queueReceiver{err: readErr}, &captureSink{})
	assert.ErrorIs(t, err, readErr)
	assert.ErrorIs(t, gotErr, readErr)
}

func TestListen_SkipsUndecodableFrames(t *testing.T) {
	client := gateway.NewClient(&captureSender{})

	notifData, err := wire.EncodeNotification(&wire.Notification{
		RoomID: "room-1",
		Result: &wire.NotificationResult{Action: wire.ActionCreate},
	})
	require.NoError(t, err)

	sink := &captureSink{}
	recv := &queueReceiver{frames: [][]byte{{0xff, 0x00}, notifData}, err: io.EOF}

	err = client.Listen(recv, sink)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, sink.notifs, 1)
}
