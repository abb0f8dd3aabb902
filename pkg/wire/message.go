package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MessageID 0 is reserved to indicate a notification message.
const NotificationMessageID uint32 = 0

// Query represents a client query to the backend.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, non-zero
//	  2: controller,   // uint8: 1=subscribe
//	  3: verb,         // uint8: 1=on, 2=off, 3=count
//	  4: collection,   // target collection name
//	  5: body,         // verb-specific body
//	  6: volatile      // client metadata, echoed in lifecycle notifications
//	}
type Query struct {
	MessageID  uint32         `cbor:"1,keyasint"`
	Controller Controller     `cbor:"2,keyasint"`
	Verb       Verb           `cbor:"3,keyasint"`
	Collection string         `cbor:"4,keyasint,omitempty"`
	Body       any            `cbor:"5,keyasint,omitempty"`
	Volatile   map[string]any `cbor:"6,keyasint,omitempty"`
}

// Validate checks if the query is valid.
func (q *Query) Validate() error {
	if q.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if !q.Controller.IsValid() {
		return fmt.Errorf("invalid controller: %d", q.Controller)
	}
	if !q.Verb.IsValid() {
		return fmt.Errorf("invalid verb: %d", q.Verb)
	}
	return nil
}

// SubscribeBody is the body of a subscribe (verb=on) query.
//
// Filters hold the backend filter DSL expression as supplied by the caller;
// the SDK treats it as opaque. SubscribeToSelf asks the backend to include
// this connection's own publishes in notifications.
type SubscribeBody struct {
	Filters         any  `cbor:"1,keyasint,omitempty"`
	SubscribeToSelf bool `cbor:"2,keyasint,omitempty"`
}

// UnsubscribeBody is the body of an unsubscribe (verb=off) query.
// RequestID is the room id returned by the matching subscribe.
type UnsubscribeBody struct {
	RequestID string `cbor:"1,keyasint"`
}

// CountBody is the body of a count (verb=count) query.
type CountBody struct {
	RoomID string `cbor:"1,keyasint"`
}

// Response represents a backend response to a query.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches the query
//	  2: status,       // uint8: 0=success, or error code
//	  3: result,       // verb-specific result (if success)
//	  4: error         // error details (if failure)
//	}
type Response struct {
	MessageID uint32        `cbor:"1,keyasint"`
	Status    Status        `cbor:"2,keyasint"`
	Result    *Result       `cbor:"3,keyasint,omitempty"`
	Error     *ErrorPayload `cbor:"4,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Err returns nil for a success response, or a StatusError otherwise.
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return NewStatusError(r.Status, r.Error)
}

// Result carries the verb-specific payload of a successful response.
//
// CBOR encoding:
//
//	{
//	  1: roomId,       // subscribe: backend-assigned channel identity
//	  2: roomName,     // subscribe: caller-facing subscription identity
//	  3: count         // count: current subscriber count
//	}
//
// RoomID may rotate across resubscribes while RoomName identifies the
// logical subscription throughout.
type Result struct {
	RoomID   string `cbor:"1,keyasint,omitempty"`
	RoomName string `cbor:"2,keyasint,omitempty"`
	Count    int    `cbor:"3,keyasint,omitempty"`
}

// Notification represents a realtime notification pushed on a room channel.
//
// CBOR encoding:
//
//	{
//	  1: 0,            // messageId 0 = notification
//	  2: roomId,       // channel the notification belongs to
//	  3: error,        // error details (exclusive with result)
//	  4: result        // notification content
//	}
type Notification struct {
	RoomID string              `cbor:"2,keyasint"`
	Error  *ErrorPayload       `cbor:"3,keyasint,omitempty"`
	Result *NotificationResult `cbor:"4,keyasint,omitempty"`
}

// NotificationResult is the content of a non-error notification.
//
// CBOR encoding:
//
//	{
//	  1: action,       // uint8: on/off/create/update/delete/publish
//	  2: count,        // subscriber count, present on augmented lifecycle events
//	  3: collection,   // source collection
//	  4: payload       // document or message content, undecoded
//	}
type NotificationResult struct {
	Action     Action          `cbor:"1,keyasint"`
	Count      int             `cbor:"2,keyasint,omitempty"`
	Collection string          `cbor:"3,keyasint,omitempty"`
	Payload    cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}
