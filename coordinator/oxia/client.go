// Package oxia implements the coordinator.Client interface using Oxia.
//
// The hierarchical node namespace maps directly onto Oxia keys. Ephemeral
// nodes use Oxia's session-bound ephemeral records, and watches are fed by
// the client's notification stream.
package oxia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/covey-io/covey/coordinator"
)

// Config configures the Oxia coordinator client.
type Config struct {
	// ServiceAddress is the Oxia service endpoint (e.g., "localhost:6648").
	ServiceAddress string

	// Namespace is the Oxia namespace to use (e.g., "covey/group-1").
	Namespace string

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds.
	RequestTimeout time.Duration

	// SessionTimeout bounds the ephemeral key session. When the session
	// expires, all ephemeral nodes created by this client are deleted.
	// Default: 15 seconds.
	SessionTimeout time.Duration
}

// Client implements coordinator.Client using Oxia.
type Client struct {
	client  oxiaclient.SyncClient
	watches *watchRegistry
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

var _ coordinator.Client = (*Client)(nil)

// New creates an Oxia-backed coordinator client and starts its
// notification pump.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ServiceAddress == "" {
		return nil, errors.New("oxia: service address is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("oxia: namespace is required")
	}

	opts := []oxiaclient.ClientOption{
		oxiaclient.WithNamespace(cfg.Namespace),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.SessionTimeout > 0 {
		opts = append(opts, oxiaclient.WithSessionTimeout(cfg.SessionTimeout))
	}

	cli, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}

	notifications, err := cli.GetNotifications()
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("oxia: failed to open notification stream: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		client:  cli,
		watches: newWatchRegistry(),
		cancel:  cancel,
	}
	go c.watches.pump(pumpCtx, notifications)
	return c, nil
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return coordinator.ErrClosed
	}
	return nil
}

// MkdirAll is a no-op: the Oxia keyspace is flat, so nodes need no
// ancestors. It is kept for interface parity with tree-shaped coordinators.
func (c *Client) MkdirAll(_ context.Context, _ string) error {
	return c.checkOpen()
}

// Create creates a node, failing with coordinator.ErrNodeExists when the
// key is already present.
func (c *Client) Create(ctx context.Context, path string, data []byte, ephemeral bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	opts := []oxiaclient.PutOption{oxiaclient.ExpectedRecordNotExists()}
	if ephemeral {
		opts = append(opts, oxiaclient.Ephemeral())
	}

	_, _, err := c.client.Put(ctx, path, data, opts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return coordinator.ErrNodeExists
		}
		return fmt.Errorf("oxia: create failed: %w", err)
	}
	return nil
}

// Get returns the node payload, reporting absence instead of erroring.
func (c *Client) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}

	_, value, _, err := c.client.Get(ctx, path)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("oxia: get failed: %w", err)
	}
	return value, true, nil
}

// Set replaces the payload of an existing node. Oxia puts are upserts, so
// the current version gates the write to preserve no-node semantics.
func (c *Client) Set(ctx context.Context, path string, data []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	_, _, version, err := c.client.Get(ctx, path)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return coordinator.ErrNoNode
		}
		return fmt.Errorf("oxia: set failed: %w", err)
	}

	_, _, err = c.client.Put(ctx, path, data, oxiaclient.ExpectedVersionId(version.VersionId))
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) || errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return coordinator.ErrNoNode
		}
		return fmt.Errorf("oxia: set failed: %w", err)
	}
	return nil
}

// Delete removes a node. Deleting an absent node is not an error.
func (c *Client) Delete(ctx context.Context, path string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if err := c.client.Delete(ctx, path); err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("oxia: delete failed: %w", err)
	}
	return nil
}

// Children lists the direct children of path. Oxia sorts keys
// hierarchically, so scanning ["<path>/", "<path>//") yields exactly the
// direct children. A non-nil watch installs a one-shot child-set watch.
func (c *Client) Children(ctx context.Context, path string, watch func()) ([]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	prefix := path + "/"
	results := c.client.RangeScan(ctx, prefix, path+"//")

	var names []string
	for result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("oxia: children failed: %w", result.Err)
		}
		names = append(names, result.Key[len(prefix):])
	}

	if watch != nil {
		c.watches.addChildWatch(path, watch)
	}
	return names, nil
}

// Exists reports whether the node is present.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}

	_, _, _, err := c.client.Get(ctx, path)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("oxia: exists failed: %w", err)
	}
	return true, nil
}

// Register installs a long-lived watch on path, fed by the notification
// stream. Callbacks run on the pump goroutine.
func (c *Client) Register(path string, cb func(coordinator.Event)) (coordinator.Subscription, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.watches.register(path, cb), nil
}

// Close stops the notification pump and ends the session, dropping all
// ephemeral nodes created through this client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.client.Close()
}
