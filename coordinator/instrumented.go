package coordinator

import (
	"context"
	"time"
)

// MetricsRecorder receives timing observations for coordinator operations.
// This keeps the package decoupled from any metrics implementation; the
// metrics package provides a Prometheus-backed recorder.
type MetricsRecorder interface {
	RecordOp(op string, durationSeconds float64, success bool)
}

// Operation label values passed to MetricsRecorder.RecordOp.
const (
	OpCreate   = "create"
	OpGet      = "get"
	OpSet      = "set"
	OpDelete   = "delete"
	OpChildren = "children"
	OpExists   = "exists"
)

// InstrumentedClient wraps a Client and records metrics for each operation.
type InstrumentedClient struct {
	client  Client
	metrics MetricsRecorder
}

var _ Client = (*InstrumentedClient)(nil)

// NewInstrumentedClient creates an instrumented wrapper around a Client.
// If metrics is nil, operations pass through unrecorded.
func NewInstrumentedClient(client Client, metrics MetricsRecorder) *InstrumentedClient {
	return &InstrumentedClient{client: client, metrics: metrics}
}

func (c *InstrumentedClient) record(op string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordOp(op, time.Since(start).Seconds(), err == nil)
	}
}

func (c *InstrumentedClient) MkdirAll(ctx context.Context, path string) error {
	return c.client.MkdirAll(ctx, path)
}

func (c *InstrumentedClient) Create(ctx context.Context, path string, data []byte, ephemeral bool) error {
	start := time.Now()
	err := c.client.Create(ctx, path, data, ephemeral)
	c.record(OpCreate, start, err)
	return err
}

func (c *InstrumentedClient) Get(ctx context.Context, path string) ([]byte, bool, error) {
	start := time.Now()
	data, ok, err := c.client.Get(ctx, path)
	c.record(OpGet, start, err)
	return data, ok, err
}

func (c *InstrumentedClient) Set(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := c.client.Set(ctx, path, data)
	c.record(OpSet, start, err)
	return err
}

func (c *InstrumentedClient) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := c.client.Delete(ctx, path)
	c.record(OpDelete, start, err)
	return err
}

func (c *InstrumentedClient) Children(ctx context.Context, path string, watch func()) ([]string, error) {
	start := time.Now()
	names, err := c.client.Children(ctx, path, watch)
	c.record(OpChildren, start, err)
	return names, err
}

func (c *InstrumentedClient) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := c.client.Exists(ctx, path)
	c.record(OpExists, start, err)
	return ok, err
}

func (c *InstrumentedClient) Register(path string, cb func(Event)) (Subscription, error) {
	return c.client.Register(path, cb)
}

func (c *InstrumentedClient) Close() error {
	return c.client.Close()
}
