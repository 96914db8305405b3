// Package coordinator defines the client interface to the hierarchical,
// sessioned metadata store that covey coordinates through. The store must
// provide ephemeral nodes that disappear with the client session, and
// watches that fire on node deletion and child-set changes.
//
// The default implementation uses Oxia (see the oxia subpackage); an
// in-memory MockClient is provided for tests.
package coordinator

import (
	"context"
	"errors"
)

// Common errors returned by coordinator operations. The core reacts to
// ErrNodeExists and ErrNoNode; everything else propagates to the caller.
var (
	// ErrNodeExists is returned by Create when the node is already present.
	ErrNodeExists = errors.New("coordinator: node exists")

	// ErrNoNode is returned by Set when the node is absent.
	ErrNoNode = errors.New("coordinator: no node")

	// ErrClosed is returned when operations are attempted on a closed client.
	ErrClosed = errors.New("coordinator: client closed")
)

// Event is a change notification for a watched node.
type Event struct {
	// Path is the node the event refers to.
	Path string
	// Deleted is true if the node was deleted.
	Deleted bool
}

// Subscription is a handle to a long-lived watch installed with Register.
type Subscription interface {
	// Unsubscribe removes the watch. It is safe to call more than once.
	Unsubscribe()
}

// Client is the set of coordinator primitives the core requires.
//
// Watch callbacks run on the client's dispatch goroutine. Callers must not
// block in them or re-enter the client from them in ways that could
// deadlock; enqueue work instead.
type Client interface {
	// MkdirAll creates the path and any missing ancestors. Idempotent.
	MkdirAll(ctx context.Context, path string) error

	// Create creates a node with the given payload. Ephemeral nodes are
	// removed automatically when this client's session ends. Returns
	// ErrNodeExists if the node is already present.
	Create(ctx context.Context, path string, data []byte, ephemeral bool) error

	// Get returns the node payload. ok is false when the node is absent.
	Get(ctx context.Context, path string) (data []byte, ok bool, err error)

	// Set replaces the node payload. Returns ErrNoNode if absent.
	Set(ctx context.Context, path string, data []byte) error

	// Delete removes the node. Deleting an absent node is not an error.
	Delete(ctx context.Context, path string) error

	// Children lists the direct children of path, by name. A non-nil watch
	// installs a one-shot notification that fires the next time the child
	// set changes.
	Children(ctx context.Context, path string, watch func()) ([]string, error)

	// Exists reports whether the node is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Register installs a long-lived watch on path. The callback is invoked
	// with every subsequent create, modify, or delete of the node until the
	// subscription is unsubscribed.
	Register(path string, cb func(Event)) (Subscription, error)

	// Close releases the session. All ephemeral nodes created through this
	// client are removed by the coordinator.
	Close() error
}
