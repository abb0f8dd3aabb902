package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for Rill messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for Rill messages.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix, // Unix timestamps
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeQuery encodes a query message to CBOR bytes.
func EncodeQuery(q *Query) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return Marshal(q)
}

// DecodeQuery decodes CBOR bytes into a query message.
func DecodeQuery(data []byte) (*Query, error) {
	var q Query
	if err := Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to decode query: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return &q, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp.MessageID == NotificationMessageID {
		return nil, fmt.Errorf("messageId 0 is reserved for notifications")
	}
	return Marshal(resp)
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// EncodeNotification encodes a notification message to CBOR bytes.
// Notifications have messageId=0 which is handled automatically.
func EncodeNotification(notif *Notification) ([]byte, error) {
	wireMsg := struct {
		MessageID uint32              `cbor:"1,keyasint"`
		RoomID    string              `cbor:"2,keyasint"`
		Error     *ErrorPayload       `cbor:"3,keyasint,omitempty"`
		Result    *NotificationResult `cbor:"4,keyasint,omitempty"`
	}{
		MessageID: NotificationMessageID,
		RoomID:    notif.RoomID,
		Error:     notif.Error,
		Result:    notif.Result,
	}
	return Marshal(wireMsg)
}

// DecodeNotification decodes CBOR bytes into a notification message.
func DecodeNotification(data []byte) (*Notification, error) {
	var wireMsg struct {
		MessageID uint32              `cbor:"1,keyasint"`
		RoomID    string              `cbor:"2,keyasint"`
		Error     *ErrorPayload       `cbor:"3,keyasint,omitempty"`
		Result    *NotificationResult `cbor:"4,keyasint,omitempty"`
	}
	if err := Unmarshal(data, &wireMsg); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if wireMsg.MessageID != NotificationMessageID {
		return nil, fmt.Errorf("not a notification message: messageId=%d", wireMsg.MessageID)
	}
	return &Notification{
		RoomID: wireMsg.RoomID,
		Error:  wireMsg.Error,
		Result: wireMsg.Result,
	}, nil
}

// Envelope holds one decoded inbound message: exactly one of Response or
// Notification is non-nil.
type Envelope struct {
	Response     *Response
	Notification *Notification
}

// DecodeEnvelope classifies and decodes an inbound frame. Frames with
// messageId 0 are notifications, everything else is a response to a
// pending query.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var peek struct {
		MessageID uint32 `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("failed to peek message: %w", err)
	}

	if peek.MessageID == NotificationMessageID {
		notif, err := DecodeNotification(data)
		if err != nil {
			return nil, err
		}
		return &Envelope{Notification: notif}, nil
	}

	resp, err := DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Response: resp}, nil
}
