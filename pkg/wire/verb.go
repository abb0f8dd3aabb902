package wire

// Controller identifies the backend controller a query is addressed to.
type Controller uint8

const (
	// ControllerSubscribe is the realtime subscription controller.
	ControllerSubscribe Controller = 1
)

// String returns the controller name.
func (c Controller) String() string {
	switch c {
	case ControllerSubscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// IsValid returns true if the controller is known.
func (c Controller) IsValid() bool {
	return c == ControllerSubscribe
}

// Verb represents a subscription controller operation.
type Verb uint8

const (
	// VerbOn establishes a subscription for a filter set.
	VerbOn Verb = 1

	// VerbOff tears down an existing subscription.
	VerbOff Verb = 2

	// VerbCount reads the number of subscribers on a room.
	VerbCount Verb = 3
)

// String returns the verb name.
func (v Verb) String() string {
	switch v {
	case VerbOn:
		return "on"
	case VerbOff:
		return "off"
	case VerbCount:
		return "count"
	default:
		return "unknown"
	}
}

// IsValid returns true if the verb is a valid subscription verb.
func (v Verb) IsValid() bool {
	return v >= VerbOn && v <= VerbCount
}
