package transport

import (
	"testing"

	"github.com/rillstream/rill-go/pkg/wire"
)

func TestHubBindAndDispatch(t *testing.T) {
	hub := NewHub()

	var received []*wire.Notification
	hub.On("r1", func(n *wire.Notification) {
		received = append(received, n)
	})

	if !hub.Bound("r1") {
		t.Error("Bound(r1) = false after On")
	}

	delivered := hub.Dispatch(&wire.Notification{
		RoomID: "r1",
		Result: &wire.NotificationResult{Action: wire.ActionCreate},
	})
	if !delivered {
		t.Error("Dispatch returned false for bound room")
	}
	if len(received) != 1 {
		t.Fatalf("handler received %d notifications, want 1", len(received))
	}
	if received[0].Result.Action != wire.ActionCreate {
		t.Errorf("action = %v, want create", received[0].Result.Action)
	}
}

func TestHubDispatchUnbound(t *testing.T) {
	hub := NewHub()

	if hub.Dispatch(&wire.Notification{RoomID: "ghost"}) {
		t.Error("Dispatch returned true for unbound room")
	}
}

func TestHubOffDetaches(t *testing.T) {
	hub := NewHub()

	calls := 0
	hub.On("r1", func(*wire.Notification) { calls++ })
	hub.Off("r1")

	if hub.Bound("r1") {
		t.Error("Bound(r1) = true after Off")
	}
	if hub.Dispatch(&wire.Notification{RoomID: "r1"}) {
		t.Error("Dispatch delivered to detached handler")
	}
	if calls != 0 {
		t.Errorf("detached handler invoked %d times", calls)
	}

	// Off on an unbound id must be a no-op
	hub.Off("r1")
}

func TestHubOnReplacesHandler(t *testing.T) {
	hub := NewHub()

	first, second := 0, 0
	hub.On("r1", func(*wire.Notification) { first++ })
	hub.On("r1", func(*wire.Notification) { second++ })

	hub.Dispatch(&wire.Notification{RoomID: "r1"})

	if first != 0 {
		t.Errorf("replaced handler invoked %d times", first)
	}
	if second != 1 {
		t.Errorf("current handler invoked %d times, want 1", second)
	}
}

func TestHubNilHandlerIgnored(t *testing.T) {
	hub := NewHub()
	hub.On("r1", nil)

	if hub.Bound("r1") {
		t.Error("nil handler was bound")
	}
}
