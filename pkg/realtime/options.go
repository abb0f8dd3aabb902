package realtime

// Config holds per-room options fixed at construction.
type Config struct {
	// ListenConnections forwards peer-subscribed lifecycle events to
	// the room's own handler.
	ListenConnections bool

	// ListenDisconnections forwards peer-unsubscribed lifecycle events
	// to the room's own handler.
	ListenDisconnections bool

	// SubscribeToSelf asks the backend to include this connection's own
	// publishes in notifications.
	SubscribeToSelf bool
}

// DefaultConfig returns the default room configuration: lifecycle
// events are not forwarded to the room handler, own publishes are
// delivered.
func DefaultConfig() Config {
	return Config{
		SubscribeToSelf: true,
	}
}
