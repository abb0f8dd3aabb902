package transport

import (
	"sync"
	"time"

	"github.com/rillstream/rill-go/pkg/log"
	"github.com/rillstream/rill-go/pkg/wire"
)

// NotificationHandler is invoked for each notification delivered on a
// bound room channel.
type NotificationHandler func(*wire.Notification)

// Hub routes inbound notifications to handlers bound by room id.
// It is the client-side end of the backend's room channels: one handler
// per room id, owned by the subscription that bound it.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]NotificationHandler

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewHub creates an empty channel hub.
func NewHub() *Hub {
	return &Hub{
		handlers: make(map[string]NotificationHandler),
	}
}

// SetLogger configures logging for the hub.
// Pass nil to disable logging.
func (h *Hub) SetLogger(logger log.Logger, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
	h.connID = connID
}

// On binds a handler to a room id, replacing any previous handler for
// that id.
func (h *Hub) On(roomID string, handler NotificationHandler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	h.handlers[roomID] = handler
	h.mu.Unlock()
}

// Off detaches the handler bound to a room id. Detaching an unbound id
// is a no-op.
func (h *Hub) Off(roomID string) {
	h.mu.Lock()
	delete(h.handlers, roomID)
	h.mu.Unlock()
}

// Bound reports whether a handler is currently bound to the room id.
func (h *Hub) Bound(roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.handlers[roomID]
	return ok
}

// Dispatch routes a notification to the handler bound to its room id.
// Notifications for unbound room ids are dropped; the backend may still
// deliver a few after an unsubscribe has locally detached the handler.
// Returns true if a handler received the notification.
func (h *Hub) Dispatch(notif *wire.Notification) bool {
	h.mu.RLock()
	handler, ok := h.handlers[notif.RoomID]
	logger := h.logger
	connID := h.connID
	h.mu.RUnlock()

	if logger != nil {
		action := wire.Action(0)
		if notif.Result != nil {
			action = notif.Result.Action
		}
		logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			RoomID:       notif.RoomID,
			Message: &log.MessageEvent{
				Type:      log.MessageTypeNotification,
				MessageID: wire.NotificationMessageID,
				Action:    &action,
			},
		})
	}

	if !ok {
		return false
	}
	handler(notif)
	return true
}
