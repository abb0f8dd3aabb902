// Package log provides structured protocol event logging for the Rill SDK.
//
// Every layer of the SDK (transport framing, wire codec, room lifecycle)
// can emit typed Event records through a Logger. Applications choose the
// sink: SlogAdapter for console output via log/slog, FileLogger for a
// CBOR event stream on disk, MultiLogger to fan out to several sinks, or
// NoopLogger to disable logging entirely.
//
// Event records carry a connection id, direction, layer and category plus
// a type-specific payload (frame, decoded message, state change, error).
// Recorded files can be read back with Reader, optionally filtered.
package log
