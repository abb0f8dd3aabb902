// Command rill-watch subscribes to a Rill collection and prints
// realtime notifications interactively.
//
// Usage:
//
//	rill-watch [flags]
//
// Flags:
//
//	-addr string        Backend address (host:port)
//	-config string      Configuration file path (YAML)
//	-collection string  Collection to subscribe to (default "messages")
//	-filters string     Initial filter expression (JSON)
//	-pin string         Pinned certificate fingerprint (hex SHA-256)
//	-insecure           Disable TLS chain verification
//	-log-file string    Record protocol events to a CBOR stream
//	-verbose            Mirror protocol events to stderr
//
// Examples:
//
//	# Watch the messages collection on a local backend
//	rill-watch -addr localhost:7512 -insecure
//
//	# Watch with a filter and a recorded protocol log
//	rill-watch -config watch.yaml -filters '{"equals":{"user":"alice"}}' -log-file session.cbor
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rillstream/rill-go/pkg/gateway"
	"github.com/rillstream/rill-go/pkg/log"
	"github.com/rillstream/rill-go/pkg/realtime"
	"github.com/rillstream/rill-go/pkg/transport"
)

func main() {
	var (
		configPath string
		addr       string
		collection string
		filtersArg string
		pin        string
		insecure   bool
		logFile    string
		verbose    bool
	)

	flag.StringVar(&configPath, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&addr, "addr", "", "Backend address (host:port)")
	flag.StringVar(&collection, "collection", "", "Collection to subscribe to")
	flag.StringVar(&filtersArg, "filters", "", "Initial filter expression (JSON)")
	flag.StringVar(&pin, "pin", "", "Pinned certificate fingerprint (hex SHA-256)")
	flag.BoolVar(&insecure, "insecure", false, "Disable TLS chain verification")
	flag.StringVar(&logFile, "log-file", "", "Record protocol events to a CBOR stream")
	flag.BoolVar(&verbose, "verbose", false, "Mirror protocol events to stderr")
	flag.Parse()

	config := DefaultConfig()
	if configPath != "" {
		var err error
		config, err = LoadConfig(configPath)
		if err != nil {
			stdlog.Fatalf("config: %v", err)
		}
	}

	// Flags override the config file.
	if addr != "" {
		config.Address = addr
	}
	if collection != "" {
		config.Collection = collection
	}
	if pin != "" {
		config.Fingerprint = pin
	}
	if insecure {
		config.Insecure = true
	}
	if logFile != "" {
		config.LogFile = logFile
	}
	if verbose {
		config.Verbose = true
	}
	if filtersArg != "" {
		if err := json.Unmarshal([]byte(filtersArg), &config.Filters); err != nil {
			stdlog.Fatalf("filters: %v", err)
		}
	}

	if err := config.Validate(); err != nil {
		stdlog.Fatalf("config: %v", err)
	}

	if err := run(config); err != nil {
		stdlog.Fatalf("rill-watch: %v", err)
	}
}

func run(config Config) error {
	logger, closeLogger, err := buildLogger(config)
	if err != nil {
		return err
	}
	defer closeLogger()

	serverName := config.ServerName
	if serverName == "" {
		host, _, err := net.SplitHostPort(config.Address)
		if err == nil {
			serverName = host
		}
	}

	dialer, err := transport.NewDialer(transport.DialerConfig{
		TLSConfig: &transport.TLSConfig{
			ServerName:         serverName,
			PinSHA256:          config.Pin(),
			InsecureSkipVerify: config.Insecure,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	conn, err := dialer.Connect(ctx, config.Address)
	cancel()
	if err != nil {
		return fmt.Errorf("connect %s: %w", config.Address, err)
	}
	defer conn.Close()

	client := gateway.NewClient(conn)
	client.SetLogger(logger, conn.ID())
	defer client.Close()

	hub := transport.NewHub()
	hub.SetLogger(logger, conn.ID())

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- client.Listen(conn, hub)
	}()

	registry := realtime.NewRegistry()
	room, err := realtime.NewRoom(config.Collection, client, hub, registry, realtime.Config{
		ListenConnections:    config.ListenConnections,
		ListenDisconnections: config.ListenDisconnections,
		SubscribeToSelf:      config.SubscribeToSelf,
	})
	if err != nil {
		return err
	}
	room.SetLogger(logger, conn.ID())

	watcher, err := newWatcher(room, registry, config)
	if err != nil {
		return err
	}

	fmt.Printf("connected to %s (%s)\n", config.Address, conn.ID())
	return watcher.Run(listenDone)
}

// buildLogger assembles the protocol logger from the config: a slog
// mirror on stderr, a CBOR file stream, both, or neither.
func buildLogger(config Config) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeLogger := func() {}

	if config.Verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(handler)))
	}
	if config.LogFile != "" {
		fileLogger, err := log.NewFileLogger(config.LogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		loggers = append(loggers, fileLogger)
		closeLogger = func() { _ = fileLogger.Close() }
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeLogger, nil
	case 1:
		return loggers[0], closeLogger, nil
	default:
		return log.NewMultiLogger(loggers...), closeLogger, nil
	}
}
