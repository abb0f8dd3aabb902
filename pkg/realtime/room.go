package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/rillstream/rill-go/pkg/gateway"
	"github.com/rillstream/rill-go/pkg/log"
	"github.com/rillstream/rill-go/pkg/transport"
	"github.com/rillstream/rill-go/pkg/wire"
)

// Room errors. Construction and precondition failures are returned
// synchronously; everything that happens after a request is sent is
// delivered through the operation's handler instead.
var (
	ErrNoCollection  = errors.New("collection name required")
	ErrNilGateway    = errors.New("gateway required")
	ErrNilTransport  = errors.New("transport required")
	ErrNilListeners  = errors.New("listener registry required")
	ErrNilHandler    = errors.New("handler required")
	ErrNotSubscribed = errors.New("not subscribed")
	ErrEmptyResponse = errors.New("response carries no result")
)

// Gateway is the request/response collaborator a room subscribes
// through. Implemented by *gateway.Client.
type Gateway interface {
	Subscribe(collection string, filters any, subscribeToSelf bool, handler gateway.ResponseHandler) error
	Unsubscribe(collection, roomID string, handler gateway.ResponseHandler) error
	Count(collection, roomID string, handler gateway.ResponseHandler) error
}

// Transport is the notification channel registry a room binds its
// handler to, keyed by room id. Implemented by *transport.Hub.
type Transport interface {
	On(roomID string, handler transport.NotificationHandler)
	Off(roomID string)
}

// Listeners is the shared lifecycle listener registry. Implemented by
// *Registry.
type Listeners interface {
	Len(event string) int
	Emit(event, subscriptionID string, result *wire.NotificationResult)
}

var (
	_ Gateway   = (*gateway.Client)(nil)
	_ Transport = (*transport.Hub)(nil)
	_ Listeners = (*Registry)(nil)
)

// NotificationHandler receives the room's notifications: data
// notifications, gated lifecycle events, and errors. Exactly one of
// result and err is non-nil.
type NotificationHandler func(result *wire.NotificationResult, err error)

// CountHandler receives the result of a count operation.
type CountHandler func(count int, err error)

// phase is the room lifecycle state.
type phase uint8

const (
	phaseIdle phase = iota
	phaseSubscribing
	phaseActive
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseSubscribing:
		return "subscribing"
	case phaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// Room manages one logical realtime subscription.
//
// While a subscribe request is in flight, Renew, Count and Unsubscribe
// queue instead of acting; the queue drains in arrival order once the
// response is processed. At most one subscribe request is in flight per
// room at any time.
type Room struct {
	collection string
	gateway    Gateway
	transport  Transport
	listeners  Listeners
	config     Config

	mu sync.Mutex

	phase   phase
	filters any
	handler NotificationHandler

	roomID         string
	subscriptionID string
	subscribedAt   time.Time

	queue []command

	logger log.Logger
	connID string
}

// NewRoom creates a room for the given collection. All three
// collaborators are required.
func NewRoom(collection string, gw Gateway, tr Transport, listeners Listeners, config Config) (*Room, error) {
	if collection == "" {
		return nil, ErrNoCollection
	}
	if gw == nil {
		return nil, ErrNilGateway
	}
	if tr == nil {
		return nil, ErrNilTransport
	}
	if listeners == nil {
		return nil, ErrNilListeners
	}

	return &Room{
		collection: collection,
		gateway:    gw,
		transport:  tr,
		listeners:  listeners,
		config:     config,
		logger:     log.NoopLogger{},
	}, nil
}

// SetLogger sets the protocol logger and the connection id to tag
// events with.
func (r *Room) SetLogger(logger log.Logger, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = log.NoopLogger{}
	}
	r.logger = logger
	r.connID = connID
}

// RoomID returns the backend-assigned channel identity, or "" when not
// subscribed. It may rotate across renews.
func (r *Room) RoomID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// SubscriptionID returns the caller-facing subscription identity, or ""
// when not subscribed.
func (r *Room) SubscriptionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscriptionID
}

// SubscribedAt returns the instant the current subscription became
// active, or the zero time when not subscribed.
func (r *Room) SubscribedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribedAt
}

// Subscribing reports whether a subscribe request is in flight.
func (r *Room) Subscribing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == phaseSubscribing
}

// Renew replaces the room's filter set and re-establishes the
// subscription. Any existing subscription is torn down first; the same
// room id is never reused across a renew.
//
// If a subscribe request is already in flight the call is queued and
// replayed once it completes. Subscription failures are delivered to
// handler; queued operations are then rejected with the same error.
func (r *Room) Renew(filters any, handler NotificationHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	if r.phase == phaseSubscribing {
		r.queue = append(r.queue, renewCommand{filters: filters, handler: handler})
		r.mu.Unlock()
		return nil
	}

	oldPhase := r.phase
	oldRoomID := r.roomID
	r.phase = phaseSubscribing
	r.filters = filters
	r.handler = handler
	r.roomID = ""
	r.subscriptionID = ""
	r.subscribedAt = time.Time{}
	subscribeToSelf := r.config.SubscribeToSelf
	r.mu.Unlock()

	r.logState(oldPhase, phaseSubscribing, "renew")

	if oldRoomID != "" {
		r.transport.Off(oldRoomID)
		// Teardown is best-effort: the response is consumed silently
		// and send failures do not block the renew.
		_ = r.gateway.Unsubscribe(r.collection, oldRoomID, nil)
	}

	if err := r.gateway.Subscribe(r.collection, filters, subscribeToSelf, r.subscribeDone); err != nil {
		r.subscribeFailed(err)
	}
	return nil
}

// Unsubscribe tears down the active subscription: the transport handler
// is detached, the identity cleared, and a fire-and-forget unsubscribe
// request sent. Backend failures are ignored; local state always
// clears. Queued while a subscribe request is in flight; a no-op when
// idle.
func (r *Room) Unsubscribe() error {
	r.mu.Lock()
	if r.phase == phaseSubscribing {
		r.queue = append(r.queue, unsubscribeCommand{})
		r.mu.Unlock()
		return nil
	}

	oldPhase := r.phase
	roomID := r.roomID
	r.phase = phaseIdle
	r.roomID = ""
	r.subscriptionID = ""
	r.subscribedAt = time.Time{}
	r.handler = nil
	r.mu.Unlock()

	if roomID == "" {
		return nil
	}

	r.logState(oldPhase, phaseIdle, "unsubscribe")

	r.transport.Off(roomID)
	_ = r.gateway.Unsubscribe(r.collection, roomID, nil)
	return nil
}

// Count queries the current number of subscribers on the room and
// forwards the result or error to handler. Queued while a subscribe
// request is in flight; state is never altered.
func (r *Room) Count(handler CountHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	if r.phase == phaseSubscribing {
		r.queue = append(r.queue, countCommand{handler: handler})
		r.mu.Unlock()
		return nil
	}
	roomID := r.roomID
	r.mu.Unlock()

	if roomID == "" {
		return ErrNotSubscribed
	}

	err := r.gateway.Count(r.collection, roomID, func(resp *wire.Response, err error) {
		count, err := countResult(resp, err)
		handler(count, err)
	})
	if err != nil {
		handler(0, err)
	}
	return nil
}

// subscribeDone processes the subscribe response and drains the queue.
func (r *Room) subscribeDone(resp *wire.Response, err error) {
	if err == nil {
		err = resp.Err()
	}
	if err == nil && (resp.Result == nil || resp.Result.RoomID == "") {
		err = ErrEmptyResponse
	}
	if err != nil {
		r.subscribeFailed(err)
		return
	}

	r.mu.Lock()
	r.phase = phaseActive
	r.roomID = resp.Result.RoomID
	r.subscriptionID = resp.Result.RoomName
	r.subscribedAt = time.Now()
	// The binding commits in the same critical section as the phase:
	// a concurrent Renew must observe both the new room id and its
	// handler, or neither, so its teardown can never run between them
	// and leave a stale binding behind. Hub.On takes only its own lock
	// and never calls back into the room.
	r.transport.On(r.roomID, r.handleNotification)
	queued := r.queue
	r.queue = nil
	r.mu.Unlock()

	r.logState(phaseSubscribing, phaseActive, "subscribed")

	r.drain(queued)
}

// subscribeFailed clears the subscribing phase, delivers the error to
// the renew handler, and rejects every queued command so no caller is
// left waiting.
func (r *Room) subscribeFailed(err error) {
	r.mu.Lock()
	r.phase = phaseIdle
	handler := r.handler
	r.handler = nil
	queued := r.queue
	r.queue = nil
	r.mu.Unlock()

	r.logState(phaseSubscribing, phaseIdle, err.Error())

	if handler != nil {
		handler(nil, err)
	}
	for _, cmd := range queued {
		switch c := cmd.(type) {
		case renewCommand:
			c.handler(nil, err)
		case countCommand:
			c.handler(0, err)
		case unsubscribeCommand:
			// Nothing pending to tear down.
		}
	}
}

// drain replays queued commands through their public operations, in
// arrival order. A replayed renew flips the room back to subscribing,
// so commands behind it re-queue through the same public path; this
// serializes any number of concurrent calls into one at a time.
// Precondition errors from a replayed command reach its handler: the
// caller queued before the precondition could be checked, so a
// synchronous return has nowhere else to go.
func (r *Room) drain(queued []command) {
	for _, cmd := range queued {
		switch c := cmd.(type) {
		case renewCommand:
			if err := r.Renew(c.filters, c.handler); err != nil {
				c.handler(nil, err)
			}
		case countCommand:
			if err := r.Count(c.handler); err != nil {
				c.handler(0, err)
			}
		case unsubscribeCommand:
			_ = r.Unsubscribe()
		}
	}
}

// handleNotification classifies an inbound notification on the room's
// channel and dispatches it.
func (r *Room) handleNotification(notif *wire.Notification) {
	r.mu.Lock()
	handler := r.handler
	roomID := r.roomID
	subscriptionID := r.subscriptionID
	r.mu.Unlock()

	if handler == nil {
		return
	}

	if notif.Error != nil {
		handler(nil, notif.Error)
		return
	}
	result := notif.Result
	if result == nil {
		return
	}

	switch result.Action {
	case wire.ActionOn:
		r.dispatchLifecycle(roomID, subscriptionID, result, handler, r.config.ListenConnections, EventSubscribed)
	case wire.ActionOff:
		r.dispatchLifecycle(roomID, subscriptionID, result, handler, r.config.ListenDisconnections, EventUnsubscribed)
	default:
		handler(result, nil)
	}
}

// dispatchLifecycle handles a peer subscribed/unsubscribed event: the
// result is augmented with the current subscriber count, delivered to
// the room handler when the gate flag is set, and fanned out to the
// shared listeners. When neither the gate nor any listener wants the
// event, the count query is skipped entirely.
func (r *Room) dispatchLifecycle(roomID, subscriptionID string, result *wire.NotificationResult, handler NotificationHandler, gate bool, event string) {
	if !gate && r.listeners.Len(event) == 0 {
		return
	}

	err := r.gateway.Count(r.collection, roomID, func(resp *wire.Response, err error) {
		count, err := countResult(resp, err)
		if err != nil {
			// Count failures reach the room handler only; listeners
			// never see a partial event.
			if gate {
				handler(nil, err)
			}
			return
		}

		result.Count = count
		if gate {
			handler(result, nil)
		}
		r.listeners.Emit(event, subscriptionID, result)
	})
	if err != nil && gate {
		handler(nil, err)
	}
}

// countResult extracts the subscriber count from a count response.
func countResult(resp *wire.Response, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	if e := resp.Err(); e != nil {
		return 0, e
	}
	if resp.Result == nil {
		return 0, ErrEmptyResponse
	}
	return resp.Result.Count, nil
}

func (r *Room) logState(from, to phase, reason string) {
	r.mu.Lock()
	logger := r.logger
	connID := r.connID
	roomID := r.roomID
	r.mu.Unlock()

	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerRoom,
		Category:     log.CategoryState,
		RoomID:       roomID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityRoom,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}
