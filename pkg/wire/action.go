package wire

// Action classifies the event a notification reports.
type Action uint8

const (
	// ActionOn indicates a peer subscribed to the same room.
	ActionOn Action = 1

	// ActionOff indicates a peer unsubscribed from the same room.
	ActionOff Action = 2

	// ActionCreate indicates a matching document was created.
	ActionCreate Action = 3

	// ActionUpdate indicates a matching document was updated.
	ActionUpdate Action = 4

	// ActionDelete indicates a matching document was deleted.
	ActionDelete Action = 5

	// ActionPublish indicates a volatile message matched the filters.
	ActionPublish Action = 6
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionOn:
		return "on"
	case ActionOff:
		return "off"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// IsLifecycle returns true for peer connection/disconnection actions,
// as opposed to ordinary data-change notifications.
func (a Action) IsLifecycle() bool {
	return a == ActionOn || a == ActionOff
}
