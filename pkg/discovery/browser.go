package discovery

import (
	"context"
	"time"
)

// Browser provides mDNS browsing for backend nodes.
type Browser interface {
	// Browse searches for backend nodes. The channel receives each node
	// as it is discovered and closes when the context is cancelled.
	Browse(ctx context.Context) (<-chan *Service, error)

	// FindNode searches for a specific node by id. Returns when found
	// or when the context is cancelled.
	FindNode(ctx context.Context, nodeID string) (*Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is the default timeout for browse operations.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FilterFunc filters browse results.
type FilterFunc func(*Service) bool

// FilterByCluster returns a filter that matches nodes in the given
// cluster.
func FilterByCluster(cluster string) FilterFunc {
	return func(svc *Service) bool {
		return svc.Cluster == cluster
	}
}
