package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the rill-watch configuration, loadable from a YAML file
// and overridable by flags.
type Config struct {
	// Address is the backend address (host:port).
	Address string `yaml:"address"`

	// Collection is the collection to subscribe to.
	Collection string `yaml:"collection"`

	// Filters is the initial filter expression sent on renew.
	Filters map[string]any `yaml:"filters"`

	// ServerName overrides the TLS server name (defaults to the host
	// part of Address).
	ServerName string `yaml:"server_name"`

	// Fingerprint pins the backend certificate (hex SHA-256).
	Fingerprint string `yaml:"fingerprint"`

	// Insecure disables TLS chain verification.
	Insecure bool `yaml:"insecure"`

	// SubscribeToSelf includes this connection's own publishes.
	SubscribeToSelf bool `yaml:"subscribe_to_self"`

	// ListenConnections forwards peer-subscribed events.
	ListenConnections bool `yaml:"listen_connections"`

	// ListenDisconnections forwards peer-unsubscribed events.
	ListenDisconnections bool `yaml:"listen_disconnections"`

	// LogFile records protocol events to a CBOR stream.
	LogFile string `yaml:"log_file"`

	// Verbose mirrors protocol events to stderr.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the default rill-watch configuration.
func DefaultConfig() Config {
	return Config{
		Collection:      "messages",
		SubscribeToSelf: true,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if c.Fingerprint != "" {
		raw, err := hex.DecodeString(c.Fingerprint)
		if err != nil || len(raw) != sha256.Size {
			return fmt.Errorf("fingerprint must be %d hex bytes", sha256.Size)
		}
	}
	return nil
}

// Pin returns the decoded certificate fingerprint, or nil.
func (c *Config) Pin() []byte {
	if c.Fingerprint == "" {
		return nil
	}
	raw, err := hex.DecodeString(c.Fingerprint)
	if err != nil {
		return nil
	}
	return raw
}
