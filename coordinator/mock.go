package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MockCluster is an in-memory coordinator shared by any number of
// MockClients. It is exported so that tests in other packages can drive
// multi-member scenarios (contended claims, session expiry) hermetically.
type MockCluster struct {
	mu    sync.Mutex
	nodes map[string]*mockNode
	subs  map[int]*mockSub
	child map[string][]func() // one-shot child watches by parent path
	next  int
}

type mockNode struct {
	data  []byte
	owner *MockClient // nil for persistent nodes
}

type mockSub struct {
	id      int
	path    string
	cb      func(Event)
	cluster *MockCluster
}

// NewMockCluster creates an empty in-memory coordinator.
func NewMockCluster() *MockCluster {
	return &MockCluster{
		nodes: make(map[string]*mockNode),
		subs:  make(map[int]*mockSub),
		child: make(map[string][]func()),
	}
}

// Client opens a new session against the cluster.
func (c *MockCluster) Client() *MockClient {
	return &MockClient{cluster: c}
}

// NewMockClient creates a single-session in-memory coordinator client.
func NewMockClient() *MockClient {
	return NewMockCluster().Client()
}

// MockClient implements Client against a MockCluster. Each client is one
// coordinator session: its ephemeral nodes vanish on Close or ExpireSession.
type MockClient struct {
	cluster *MockCluster
	mu      sync.Mutex
	closed  bool
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// MkdirAll is a no-op beyond session checking; the mock keyspace is flat.
func (m *MockClient) MkdirAll(_ context.Context, _ string) error {
	return m.checkOpen()
}

func (m *MockClient) Create(_ context.Context, path string, data []byte, ephemeral bool) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	c := m.cluster
	c.mu.Lock()
	if _, ok := c.nodes[path]; ok {
		c.mu.Unlock()
		return ErrNodeExists
	}
	n := &mockNode{data: append([]byte(nil), data...)}
	if ephemeral {
		n.owner = m
	}
	c.nodes[path] = n
	fire := c.collectWatchesLocked(path, false, true)
	c.mu.Unlock()
	fire()
	return nil
}

func (m *MockClient) Get(_ context.Context, path string) ([]byte, bool, error) {
	if err := m.checkOpen(); err != nil {
		return nil, false, err
	}
	c := m.cluster
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[path]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), n.data...), true, nil
}

func (m *MockClient) Set(_ context.Context, path string, data []byte) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	c := m.cluster
	c.mu.Lock()
	n, ok := c.nodes[path]
	if !ok {
		c.mu.Unlock()
		return ErrNoNode
	}
	n.data = append([]byte(nil), data...)
	fire := c.collectWatchesLocked(path, false, false)
	c.mu.Unlock()
	fire()
	return nil
}

func (m *MockClient) Delete(_ context.Context, path string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	c := m.cluster
	c.mu.Lock()
	if _, ok := c.nodes[path]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.nodes, path)
	fire := c.collectWatchesLocked(path, true, true)
	c.mu.Unlock()
	fire()
	return nil
}

func (m *MockClient) Children(_ context.Context, path string, watch func()) ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	c := m.cluster
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := strings.TrimSuffix(path, "/") + "/"
	seen := make(map[string]struct{})
	for k := range c.nodes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		seen[rest] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	if watch != nil {
		parent := strings.TrimSuffix(path, "/")
		c.child[parent] = append(c.child[parent], watch)
	}
	return names, nil
}

func (m *MockClient) Exists(_ context.Context, path string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	c := m.cluster
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.nodes[path]
	return ok, nil
}

func (m *MockClient) Register(path string, cb func(Event)) (Subscription, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	c := m.cluster
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	sub := &mockSub{id: c.next, path: path, cb: cb, cluster: c}
	c.subs[sub.id] = sub
	return sub, nil
}

func (s *mockSub) Unsubscribe() {
	c := s.cluster
	c.mu.Lock()
	delete(c.subs, s.id)
	c.mu.Unlock()
}

// ExpireSession simulates a coordinator session loss: every ephemeral node
// created through this client is removed and the relevant watches fire. The
// client itself becomes unusable, like a real expired session.
func (m *MockClient) ExpireSession() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	c := m.cluster
	c.mu.Lock()
	var fires []func()
	for path, n := range c.nodes {
		if n.owner == m {
			delete(c.nodes, path)
			fires = append(fires, c.collectWatchesLocked(path, true, true))
		}
	}
	c.mu.Unlock()
	for _, fire := range fires {
		fire()
	}
}

// Close ends the session, dropping this client's ephemeral nodes.
func (m *MockClient) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	m.ExpireSession()
	return nil
}

// collectWatchesLocked gathers the callbacks affected by a change to path
// and returns a closure that invokes them outside the cluster lock. One-shot
// child watches on the parent are consumed only when the child set changed;
// Register subscriptions fire on every change and are not consumed.
func (c *MockCluster) collectWatchesLocked(path string, deleted, childSetChanged bool) func() {
	var cbs []func(Event)
	for _, sub := range c.subs {
		if sub.path == path {
			cbs = append(cbs, sub.cb)
		}
	}

	var oneShots []func()
	if childSetChanged {
		parent := path
		if i := strings.LastIndexByte(parent, '/'); i > 0 {
			parent = parent[:i]
		}
		oneShots = c.child[parent]
		delete(c.child, parent)
	}

	ev := Event{Path: path, Deleted: deleted}
	return func() {
		for _, cb := range cbs {
			cb(ev)
		}
		for _, w := range oneShots {
			w()
		}
	}
}
