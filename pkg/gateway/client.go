package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rillstream/rill-go/pkg/log"
	"github.com/rillstream/rill-go/pkg/version"
	"github.com/rillstream/rill-go/pkg/wire"
)

// Client errors.
var (
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Sender is the interface for sending encoded messages over a connection.
type Sender interface {
	Send(data []byte) error
}

// Receiver is the interface for receiving encoded messages from a
// connection. A timeout of 0 blocks until data arrives or the
// connection fails.
type Receiver interface {
	Receive(timeout time.Duration) ([]byte, error)
}

// NotificationSink receives demultiplexed notifications. Returns true
// if a handler consumed the notification.
type NotificationSink interface {
	Dispatch(notif *wire.Notification) bool
}

// ResponseHandler is called with the response to a query, or with an
// error if the query could not complete (connection failure, client
// closed). Exactly one of resp and err is non-nil.
type ResponseHandler func(resp *wire.Response, err error)

// Client provides the request/response layer over a connection.
type Client struct {
	mu sync.RWMutex

	sender   Sender
	volatile map[string]any

	// Message ID generator
	nextMsgID uint32

	// Pending queries awaiting responses. A nil handler marks a
	// fire-and-forget query whose response is consumed silently.
	pending   map[uint32]ResponseHandler
	pendingMu sync.Mutex

	logger log.Logger
	connID string

	closed bool
}

// NewClient creates a new gateway client sending over the given sender.
func NewClient(sender Sender) *Client {
	return &Client{
		sender: sender,
		volatile: map[string]any{
			"sdkVersion": version.SDK,
		},
		pending: make(map[uint32]ResponseHandler),
		logger:  log.NoopLogger{},
	}
}

// SetLogger sets the protocol logger and the connection id to tag
// events with.
func (c *Client) SetLogger(logger log.Logger, connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = log.NoopLogger{}
	}
	c.logger = logger
	c.connID = connID
}

// SetVolatile sets a volatile metadata entry attached to every query.
// The backend echoes volatile data in lifecycle notifications.
func (c *Client) SetVolatile(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volatile[key] = value
}

// nextMessageID generates the next unique message ID. IDs start at 1;
// 0 is reserved for notifications.
func (c *Client) nextMessageID() uint32 {
	return atomic.AddUint32(&c.nextMsgID, 1)
}

// Query assigns a message ID to q, attaches volatile metadata, encodes
// and sends it, and registers handler for the response. The handler may
// be nil for fire-and-forget queries. Encoding and send failures are
// returned directly; the handler is not invoked for them.
func (c *Client) Query(q *wire.Query, handler ResponseHandler) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClientClosed
	}
	sender := c.sender
	logger := c.logger
	connID := c.connID
	volatile := make(map[string]any, len(c.volatile))
	for k, v := range c.volatile {
		volatile[k] = v
	}
	c.mu.RUnlock()

	q.MessageID = c.nextMessageID()
	if q.Volatile == nil {
		q.Volatile = volatile
	} else {
		for k, v := range volatile {
			if _, ok := q.Volatile[k]; !ok {
				q.Volatile[k] = v
			}
		}
	}

	data, err := wire.EncodeQuery(q)
	if err != nil {
		return err
	}

	c.pendingMu.Lock()
	c.pending[q.MessageID] = handler
	c.pendingMu.Unlock()

	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:       log.MessageTypeQuery,
			MessageID:  q.MessageID,
			Verb:       &q.Verb,
			Collection: q.Collection,
		},
	})

	if err := sender.Send(data); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, q.MessageID)
		c.pendingMu.Unlock()
		return err
	}

	return nil
}

// Subscribe sends a subscribe query for the given collection and
// filters.
func (c *Client) Subscribe(collection string, filters any, subscribeToSelf bool, handler ResponseHandler) error {
	return c.Query(&wire.Query{
		Controller: wire.ControllerSubscribe,
		Verb:       wire.VerbOn,
		Collection: collection,
		Body: &wire.SubscribeBody{
			Filters:         filters,
			SubscribeToSelf: subscribeToSelf,
		},
	}, handler)
}

// Unsubscribe sends an unsubscribe query for the room id returned by a
// previous subscribe. Pass a nil handler to ignore the response.
func (c *Client) Unsubscribe(collection, roomID string, handler ResponseHandler) error {
	return c.Query(&wire.Query{
		Controller: wire.ControllerSubscribe,
		Verb:       wire.VerbOff,
		Collection: collection,
		Body:       &wire.UnsubscribeBody{RequestID: roomID},
	}, handler)
}

// Count sends a count query for the current number of subscribers on a
// room.
func (c *Client) Count(collection, roomID string, handler ResponseHandler) error {
	return c.Query(&wire.Query{
		Controller: wire.ControllerSubscribe,
		Verb:       wire.VerbCount,
		Collection: collection,
		Body:       &wire.CountBody{RoomID: roomID},
	}, handler)
}

// HandleResponse routes a response to the handler registered for its
// message ID. Returns ErrUnexpectedReply if no query is pending under
// that ID.
func (c *Client) HandleResponse(resp *wire.Response) error {
	c.pendingMu.Lock()
	handler, exists := c.pending[resp.MessageID]
	if exists {
		delete(c.pending, resp.MessageID)
	}
	c.pendingMu.Unlock()

	c.mu.RLock()
	logger := c.logger
	connID := c.connID
	c.mu.RUnlock()

	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeResponse,
			MessageID: resp.MessageID,
			Status:    &resp.Status,
		},
	})

	if !exists {
		return ErrUnexpectedReply
	}
	if handler != nil {
		handler(resp, nil)
	}
	return nil
}

// Listen reads messages from the connection until it fails, routing
// responses to pending handlers and notifications to the sink. On exit
// all pending handlers receive the read error. Decode failures are
// logged and the frame is skipped.
func (c *Client) Listen(conn Receiver, sink NotificationSink) error {
	for {
		data, err := conn.Receive(0)
		if err != nil {
			c.rejectPending(err)
			return err
		}

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			c.logError(err, "decode message")
			continue
		}

		switch {
		case env.Response != nil:
			if err := c.HandleResponse(env.Response); err != nil {
				c.logError(err, "route response")
			}
		case env.Notification != nil:
			sink.Dispatch(env.Notification)
		}
	}
}

// Close closes the client. All pending handlers receive
// ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.rejectPending(ErrClientClosed)
	return nil
}

// rejectPending delivers err to every pending handler and clears the
// pending map.
func (c *Client) rejectPending(err error) {
	c.pendingMu.Lock()
	handlers := make([]ResponseHandler, 0, len(c.pending))
	for _, handler := range c.pending {
		if handler != nil {
			handlers = append(handlers, handler)
		}
	}
	c.pending = make(map[uint32]ResponseHandler)
	c.pendingMu.Unlock()

	for _, handler := range handlers {
		handler(nil, err)
	}
}

func (c *Client) logError(err error, context string) {
	c.mu.RLock()
	logger := c.logger
	connID := c.connID
	c.mu.RUnlock()

	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}
