package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/rillstream/rill-go/pkg/gateway"
	"github.com/rillstream/rill-go/pkg/transport"
	"github.com/rillstream/rill-go/pkg/wire"
)

type subscribeCall struct {
	filters any
	self    bool
	handler gateway.ResponseHandler
}

type countCall struct {
	roomID  string
	handler gateway.ResponseHandler
}

// fakeGateway records queries and lets tests complete them manually, so
// in-flight windows can be observed.
type fakeGateway struct {
	calls        []string
	subscribes   []subscribeCall
	unsubscribes []string
	counts       []countCall
	subscribeErr error
	countErr     error
}

func (g *fakeGateway) Subscribe(collection string, filters any, self bool, handler gateway.ResponseHandler) error {
	if g.subscribeErr != nil {
		return g.subscribeErr
	}
	g.calls = append(g.calls, "subscribe")
	g.subscribes = append(g.subscribes, subscribeCall{filters: filters, self: self, handler: handler})
	return nil
}

func (g *fakeGateway) Unsubscribe(collection, roomID string, handler gateway.ResponseHandler) error {
	g.calls = append(g.calls, "unsubscribe")
	g.unsubscribes = append(g.unsubscribes, roomID)
	return nil
}

func (g *fakeGateway) Count(collection, roomID string, handler gateway.ResponseHandler) error {
	if g.countErr != nil {
		return g.countErr
	}
	g.calls = append(g.calls, "count")
	g.counts = append(g.counts, countCall{roomID: roomID, handler: handler})
	return nil
}

func (g *fakeGateway) finishSubscribe(i int, roomID, roomName string) {
	g.subscribes[i].handler(&wire.Response{
		MessageID: uint32(i + 1),
		Status:    wire.StatusSuccess,
		Result:    &wire.Result{RoomID: roomID, RoomName: roomName},
	}, nil)
}

func (g *fakeGateway) failSubscribe(i int, err error) {
	g.subscribes[i].handler(nil, err)
}

func (g *fakeGateway) rejectSubscribe(i int, status wire.Status) {
	g.subscribes[i].handler(&wire.Response{
		MessageID: uint32(i + 1),
		Status:    status,
	}, nil)
}

func (g *fakeGateway) finishCount(i, count int) {
	g.counts[i].handler(&wire.Response{
		MessageID: uint32(100 + i),
		Status:    wire.StatusSuccess,
		Result:    &wire.Result{Count: count},
	}, nil)
}

func (g *fakeGateway) failCount(i int, err error) {
	g.counts[i].handler(nil, err)
}

// fakeTransport records handler bindings per room id.
type fakeTransport struct {
	handlers map[string]transport.NotificationHandler
	offs     []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]transport.NotificationHandler)}
}

func (tr *fakeTransport) On(roomID string, handler transport.NotificationHandler) {
	tr.handlers[roomID] = handler
}

func (tr *fakeTransport) Off(roomID string) {
	delete(tr.handlers, roomID)
	tr.offs = append(tr.offs, roomID)
}

func (tr *fakeTransport) deliver(roomID string, notif *wire.Notification) bool {
	handler, ok := tr.handlers[roomID]
	if !ok {
		return false
	}
	handler(notif)
	return true
}

// gatedTransport stalls inside On until released, widening the window
// between a subscribe commit and its handler binding.
type gatedTransport struct {
	*fakeTransport
	entered chan string
	release chan struct{}
}

func (tr *gatedTransport) On(roomID string, handler transport.NotificationHandler) {
	tr.entered <- roomID
	<-tr.release
	tr.fakeTransport.On(roomID, handler)
}

func newTestRoom(t *testing.T, config Config) (*Room, *fakeGateway, *fakeTransport, *Registry) {
	t.Helper()
	gw := &fakeGateway{}
	tr := newFakeTransport()
	reg := NewRegistry()
	room, err := NewRoom("messages", gw, tr, reg, config)
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}
	return room, gw, tr, reg
}

// activeRoom returns a room already subscribed as r1/s1.
func activeRoom(t *testing.T, config Config) (*Room, *fakeGateway, *fakeTransport, *Registry, *[]*wire.NotificationResult, *[]error) {
	t.Helper()
	room, gw, tr, reg := newTestRoom(t, config)

	var results []*wire.NotificationResult
	var errs []error
	err := room.Renew(map[string]any{"field": "x"}, func(result *wire.NotificationResult, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		results = append(results, result)
	})
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	gw.finishSubscribe(0, "r1", "s1")
	return room, gw, tr, reg, &results, &errs
}

func TestNewRoom_MissingCollaborators(t *testing.T) {
	gw := &fakeGateway{}
	tr := newFakeTransport()
	reg := NewRegistry()

	tests := []struct {
		name       string
		collection string
		gateway    Gateway
		transport  Transport
		listeners  Listeners
		wantErr    error
	}{
		{"no collection", "", gw, tr, reg, ErrNoCollection},
		{"nil gateway", "messages", nil, tr, reg, ErrNilGateway},
		{"nil transport", "messages", gw, nil, reg, ErrNilTransport},
		{"nil listeners", "messages", gw, tr, nil, ErrNilListeners},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoom(tt.collection, tt.gateway, tt.transport, tt.listeners, DefaultConfig())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewRoom error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRenew_NilHandler(t *testing.T) {
	room, _, _, _ := newTestRoom(t, DefaultConfig())
	if err := room.Renew(nil, nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Renew(nil handler) = %v, want ErrNilHandler", err)
	}
}

func TestCount_NilHandler(t *testing.T) {
	room, _, _, _ := newTestRoom(t, DefaultConfig())
	if err := room.Count(nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Count(nil handler) = %v, want ErrNilHandler", err)
	}
}

func TestRenew_Activates(t *testing.T) {
	room, gw, tr, _ := newTestRoom(t, DefaultConfig())

	err := room.Renew(map[string]any{"field": "x"}, func(*wire.NotificationResult, error) {})
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}

	if !room.Subscribing() {
		t.Error("Subscribing() = false while request in flight, want true")
	}
	if got := gw.subscribes[0].self; got != true {
		t.Errorf("subscribeToSelf = %v, want true", got)
	}

	gw.finishSubscribe(0, "r1", "s1")

	if room.Subscribing() {
		t.Error("Subscribing() = true after response, want false")
	}
	if got := room.RoomID(); got != "r1" {
		t.Errorf("RoomID() = %q, want %q", got, "r1")
	}
	if got := room.SubscriptionID(); got != "s1" {
		t.Errorf("SubscriptionID() = %q, want %q", got, "s1")
	}
	if room.SubscribedAt().IsZero() {
		t.Error("SubscribedAt() is zero after successful renew")
	}
	if _, bound := tr.handlers["r1"]; !bound {
		t.Error("transport handler not bound under room id r1")
	}
}

func TestRenew_BackendRejection(t *testing.T) {
	room, gw, _, _ := newTestRoom(t, DefaultConfig())

	var gotErr error
	_ = room.Renew(nil, func(result *wire.NotificationResult, err error) {
		gotErr = err
	})
	gw.rejectSubscribe(0, wire.StatusNotAuthorized)

	var statusErr *wire.StatusError
	if !errors.As(gotErr, &statusErr) {
		t.Fatalf("handler error = %v, want *wire.StatusError", gotErr)
	}
	if room.Subscribing() {
		t.Error("Subscribing() = true after failed renew, want false")
	}
	if room.RoomID() != "" {
		t.Errorf("RoomID() = %q after failed renew, want empty", room.RoomID())
	}
}

func TestRenew_FailureRejectsQueued(t *testing.T) {
	room, gw, _, _ := newTestRoom(t, DefaultConfig())

	var renewErr, queuedRenewErr, countErr error
	_ = room.Renew(nil, func(_ *wire.NotificationResult, err error) { renewErr = err })
	_ = room.Count(func(_ int, err error) { countErr = err })
	_ = room.Renew(nil, func(_ *wire.NotificationResult, err error) { queuedRenewErr = err })

	failure := errors.New("connection reset")
	gw.failSubscribe(0, failure)

	if !errors.Is(renewErr, failure) {
		t.Errorf("renew handler error = %v, want %v", renewErr, failure)
	}
	if !errors.Is(countErr, failure) {
		t.Errorf("queued count error = %v, want %v", countErr, failure)
	}
	if !errors.Is(queuedRenewErr, failure) {
		t.Errorf("queued renew error = %v, want %v", queuedRenewErr, failure)
	}
	if room.Subscribing() {
		t.Error("Subscribing() = true after failure, want false")
	}
}

func TestQueue_FIFO(t *testing.T) {
	room, gw, tr, _ := newTestRoom(t, DefaultConfig())

	_ = room.Renew(map[string]any{"v": 1}, func(*wire.NotificationResult, error) {})

	var gotCount int
	_ = room.Count(func(count int, err error) {
		if err != nil {
			t.Errorf("queued count error: %v", err)
			return
		}
		gotCount = count
	})
	_ = room.Unsubscribe()
	_ = room.Renew(map[string]any{"v": 2}, func(*wire.NotificationResult, error) {})

	// Nothing runs while the first subscribe is in flight.
	if got := len(gw.calls); got != 1 {
		t.Fatalf("gateway calls before response = %d, want 1", got)
	}

	gw.finishSubscribe(0, "r1", "s1")
	gw.finishCount(0, 4)

	want := []string{"subscribe", "count", "unsubscribe", "subscribe"}
	if len(gw.calls) != len(want) {
		t.Fatalf("gateway calls = %v, want %v", gw.calls, want)
	}
	for i, call := range want {
		if gw.calls[i] != call {
			t.Fatalf("gateway calls = %v, want %v", gw.calls, want)
		}
	}
	if gotCount != 4 {
		t.Errorf("queued count = %d, want 4", gotCount)
	}
	if gw.unsubscribes[0] != "r1" {
		t.Errorf("unsubscribed room = %q, want r1", gw.unsubscribes[0])
	}

	gw.finishSubscribe(1, "r2", "s2")

	if got := room.RoomID(); got != "r2" {
		t.Errorf("RoomID() = %q, want r2", got)
	}
	if len(tr.handlers) != 1 {
		t.Errorf("live transport bindings = %d, want 1", len(tr.handlers))
	}
	if _, bound := tr.handlers["r2"]; !bound {
		t.Error("transport handler not bound under r2")
	}
}

func TestQueue_CountAfterUnsubscribeReachesHandler(t *testing.T) {
	room, gw, _, _ := newTestRoom(t, DefaultConfig())

	_ = room.Renew(map[string]any{"v": 1}, func(*wire.NotificationResult, error) {})
	_ = room.Unsubscribe()

	var countErrs []error
	_ = room.Count(func(count int, err error) {
		countErrs = append(countErrs, err)
	})

	gw.finishSubscribe(0, "r1", "s1")

	// The queued unsubscribe drains first, so the queued count finds no
	// room id; its handler still hears about it.
	if len(countErrs) != 1 {
		t.Fatalf("count handler invocations = %d, want 1", len(countErrs))
	}
	if !errors.Is(countErrs[0], ErrNotSubscribed) {
		t.Errorf("count error = %v, want %v", countErrs[0], ErrNotSubscribed)
	}
}

func TestRenew_ConcurrentRenewSingleBinding(t *testing.T) {
	gw := &fakeGateway{}
	tr := &gatedTransport{
		fakeTransport: newFakeTransport(),
		entered:       make(chan string, 2),
		release:       make(chan struct{}),
	}
	room, err := NewRoom("messages", gw, tr, NewRegistry(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}

	handler := func(*wire.NotificationResult, error) {}
	_ = room.Renew(map[string]any{"v": 1}, handler)

	firstDone := make(chan struct{})
	go func() {
		gw.finishSubscribe(0, "r1", "s1")
		close(firstDone)
	}()
	// The first subscribe has committed and is binding its handler.
	if got := <-tr.entered; got != "r1" {
		t.Fatalf("first binding = %q, want r1", got)
	}

	secondDone := make(chan struct{})
	go func() {
		_ = room.Renew(map[string]any{"v": 2}, handler)
		close(secondDone)
	}()

	// The second renew's teardown must not slip in before the first
	// binding lands.
	time.Sleep(50 * time.Millisecond)
	close(tr.release)
	<-firstDone
	<-secondDone

	gw.finishSubscribe(1, "r2", "s2")

	if len(tr.handlers) != 1 {
		t.Fatalf("live transport bindings = %d (%v), want exactly 1", len(tr.handlers), bindingKeys(tr.fakeTransport))
	}
	if _, bound := tr.handlers["r2"]; !bound {
		t.Error("transport handler not bound under r2")
	}
	if len(tr.offs) == 0 || tr.offs[0] != "r1" {
		t.Errorf("transport offs = %v, want [r1 ...]", tr.offs)
	}
}

func bindingKeys(tr *fakeTransport) []string {
	keys := make([]string, 0, len(tr.handlers))
	for id := range tr.handlers {
		keys = append(keys, id)
	}
	return keys
}

func TestRenew_SequentialReplacesBinding(t *testing.T) {
	room, gw, tr, _ := newTestRoom(t, DefaultConfig())

	_ = room.Renew(map[string]any{"v": 1}, func(*wire.NotificationResult, error) {})
	gw.finishSubscribe(0, "r1", "s1")

	_ = room.Renew(map[string]any{"v": 2}, func(*wire.NotificationResult, error) {})

	// The old binding is torn down before the new subscribe commits.
	want := []string{"subscribe", "unsubscribe", "subscribe"}
	for i, call := range want {
		if gw.calls[i] != call {
			t.Fatalf("gateway calls = %v, want %v", gw.calls, want)
		}
	}
	if len(tr.offs) == 0 || tr.offs[0] != "r1" {
		t.Errorf("transport offs = %v, want [r1 ...]", tr.offs)
	}

	gw.finishSubscribe(1, "r2", "s2")

	if len(tr.handlers) != 1 {
		t.Errorf("live transport bindings = %d, want 1", len(tr.handlers))
	}
	if _, bound := tr.handlers["r2"]; !bound {
		t.Error("transport handler not bound under r2")
	}
}

func TestRenew_QueuedTakesLatestFilters(t *testing.T) {
	room, gw, tr, _ := newTestRoom(t, DefaultConfig())

	first := map[string]any{"v": 1}
	second := map[string]any{"v": 2}
	_ = room.Renew(first, func(*wire.NotificationResult, error) {})
	_ = room.Renew(second, func(*wire.NotificationResult, error) {})

	gw.finishSubscribe(0, "r1", "s1")
	gw.finishSubscribe(1, "r2", "s2")

	got, ok := gw.subscribes[1].filters.(map[string]any)
	if !ok || got["v"] != 2 {
		t.Errorf("second subscribe filters = %v, want %v", gw.subscribes[1].filters, second)
	}
	if len(tr.handlers) != 1 {
		t.Errorf("live transport bindings = %d, want 1", len(tr.handlers))
	}
	if got := room.RoomID(); got != "r2" {
		t.Errorf("RoomID() = %q, want r2", got)
	}
}

func TestUnsubscribe_ClearsState(t *testing.T) {
	room, gw, tr, _, results, errs := activeRoom(t, DefaultConfig())

	if err := room.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	if room.RoomID() != "" || room.SubscriptionID() != "" || !room.SubscribedAt().IsZero() {
		t.Error("subscription identity not fully cleared after unsubscribe")
	}
	if gw.unsubscribes[0] != "r1" {
		t.Errorf("unsubscribed room = %q, want r1", gw.unsubscribes[0])
	}

	// Late notifications on the stale room id are not delivered.
	delivered := tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionPublish},
	})
	if delivered {
		t.Error("notification delivered on detached room id")
	}
	if len(*results) != 0 || len(*errs) != 0 {
		t.Error("room handler invoked after unsubscribe")
	}
}

func TestUnsubscribe_IdleIsNoop(t *testing.T) {
	room, gw, _, _ := newTestRoom(t, DefaultConfig())

	if err := room.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("gateway calls = %v, want none", gw.calls)
	}
}

func TestCount_NotSubscribed(t *testing.T) {
	room, _, _, _ := newTestRoom(t, DefaultConfig())

	err := room.Count(func(int, error) {})
	if !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Count while idle = %v, want ErrNotSubscribed", err)
	}
}

func TestCount_ForwardsResult(t *testing.T) {
	room, gw, _, _, _, _ := activeRoom(t, DefaultConfig())

	var gotCount int
	var gotErr error
	_ = room.Count(func(count int, err error) {
		gotCount, gotErr = count, err
	})
	gw.finishCount(0, 5)

	if gotErr != nil {
		t.Fatalf("count error = %v", gotErr)
	}
	if gotCount != 5 {
		t.Errorf("count = %d, want 5", gotCount)
	}
	if gw.counts[0].roomID != "r1" {
		t.Errorf("count room = %q, want r1", gw.counts[0].roomID)
	}
}

func TestCount_ForwardsError(t *testing.T) {
	room, gw, _, _, _, _ := activeRoom(t, DefaultConfig())

	failure := errors.New("timeout")
	var gotErr error
	_ = room.Count(func(count int, err error) { gotErr = err })
	gw.failCount(0, failure)

	if !errors.Is(gotErr, failure) {
		t.Errorf("count error = %v, want %v", gotErr, failure)
	}
}

func TestNotification_DataForwardedUngated(t *testing.T) {
	_, gw, tr, _, results, _ := activeRoom(t, Config{})

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionPublish, Collection: "messages"},
	})

	if len(*results) != 1 {
		t.Fatalf("handler results = %d, want 1", len(*results))
	}
	if got := (*results)[0].Action; got != wire.ActionPublish {
		t.Errorf("action = %v, want publish", got)
	}
	if got := (*results)[0].Count; got != 0 {
		t.Errorf("count = %d for data notification, want 0", got)
	}
	// Data notifications never trigger a count query.
	if len(gw.counts) != 0 {
		t.Errorf("count queries = %d, want 0", len(gw.counts))
	}
}

func TestNotification_ErrorForwarded(t *testing.T) {
	_, _, tr, _, results, errs := activeRoom(t, DefaultConfig())

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Error:  &wire.ErrorPayload{Code: 42, Message: "filter evaluation failed"},
	})

	if len(*errs) != 1 {
		t.Fatalf("handler errors = %d, want 1", len(*errs))
	}
	if len(*results) != 0 {
		t.Errorf("handler results = %d, want 0", len(*results))
	}
}

func TestLifecycle_SkippedWhenNobodyListens(t *testing.T) {
	_, gw, tr, _, results, _ := activeRoom(t, Config{})

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionOn},
	})

	if len(gw.counts) != 0 {
		t.Errorf("count queries = %d with gate off and no listeners, want 0", len(gw.counts))
	}
	if len(*results) != 0 {
		t.Errorf("handler results = %d, want 0", len(*results))
	}
}

func TestLifecycle_GatedDeliveryWithCount(t *testing.T) {
	_, gw, tr, _, results, _ := activeRoom(t, Config{ListenConnections: true})

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionOn},
	})

	if len(gw.counts) != 1 || gw.counts[0].roomID != "r1" {
		t.Fatalf("count queries = %v, want one for r1", gw.counts)
	}
	gw.finishCount(0, 3)

	if len(*results) != 1 {
		t.Fatalf("handler results = %d, want 1", len(*results))
	}
	got := (*results)[0]
	if got.Action != wire.ActionOn {
		t.Errorf("action = %v, want on", got.Action)
	}
	if got.Count != 3 {
		t.Errorf("count = %d, want 3", got.Count)
	}
}

func TestLifecycle_CountFailureSkipsListeners(t *testing.T) {
	_, gw, tr, reg, _, errs := activeRoom(t, Config{ListenConnections: true})

	listenerCalls := 0
	reg.On(EventSubscribed, func(string, *wire.NotificationResult) { listenerCalls++ })

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionOn},
	})
	gw.failCount(0, errors.New("backend busy"))

	if len(*errs) != 1 {
		t.Fatalf("handler errors = %d, want 1", len(*errs))
	}
	if listenerCalls != 0 {
		t.Errorf("listener calls = %d after count failure, want 0", listenerCalls)
	}
}

func TestLifecycle_ListenersWithoutGate(t *testing.T) {
	_, gw, tr, reg, results, _ := activeRoom(t, Config{})

	var gotSubID string
	var gotResult *wire.NotificationResult
	reg.On(EventUnsubscribed, func(subscriptionID string, result *wire.NotificationResult) {
		gotSubID = subscriptionID
		gotResult = result
	})

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionOff},
	})
	gw.finishCount(0, 2)

	// Gate is off: the room handler stays silent, listeners still fire.
	if len(*results) != 0 {
		t.Errorf("handler results = %d, want 0", len(*results))
	}
	if gotSubID != "s1" {
		t.Errorf("listener subscription id = %q, want s1", gotSubID)
	}
	if gotResult == nil || gotResult.Count != 2 {
		t.Errorf("listener result = %+v, want count 2", gotResult)
	}
}

func TestLifecycle_ListenerOrder(t *testing.T) {
	_, gw, tr, reg, _, _ := activeRoom(t, Config{})

	var order []int
	reg.On(EventSubscribed, func(string, *wire.NotificationResult) { order = append(order, 1) })
	reg.On(EventSubscribed, func(string, *wire.NotificationResult) { order = append(order, 2) })
	reg.On(EventSubscribed, func(string, *wire.NotificationResult) { order = append(order, 3) })

	tr.deliver("r1", &wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionOn},
	})
	gw.finishCount(0, 1)

	if len(order) != 3 {
		t.Fatalf("listener calls = %d, want 3", len(order))
	}
	for i, got := range order {
		if got != i+1 {
			t.Fatalf("listener order = %v, want [1 2 3]", order)
		}
	}
}
