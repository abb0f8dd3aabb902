package log

// Logger consumes protocol events emitted by the transport, gateway
// and room layers. Implementations are called from those layers'
// goroutines and must tolerate concurrent calls.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use; it is
// what the SDK falls back to when no logger is configured.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger fans each event out to several loggers in order, for
// example a CBOR file stream plus an slog mirror on stderr.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines the given loggers into one.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
