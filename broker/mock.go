package broker

import (
	"context"
	"strconv"
	"sync"
)

// MockClient implements Client against scripted metadata and per-partition
// message queues. It is exported so that tests in other packages can drive
// the consumer group without real brokers.
type MockClient struct {
	mu         sync.Mutex
	metadata   map[string]*Metadata
	queues     map[string][]Message // keyed by topic/partition
	earliest   map[string]int64
	latest     map[string]int64
	closed     bool
	consumers  []*MockPartitionConsumer
	fetchCalls int
}

// NewMockClient creates an empty mock broker client.
func NewMockClient() *MockClient {
	return &MockClient{
		metadata: make(map[string]*Metadata),
		queues:   make(map[string][]Message),
		earliest: make(map[string]int64),
		latest:   make(map[string]int64),
	}
}

func queueKey(topic string, partition int32) string {
	return topic + "/" + strconv.Itoa(int(partition))
}

// SetMetadata scripts the metadata response for a topic.
func (m *MockClient) SetMetadata(topic string, md *Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[topic] = md
}

// SetOffsets scripts the earliest and latest offsets of a partition.
func (m *MockClient) SetOffsets(topic string, partition int32, earliest, latest int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := queueKey(topic, partition)
	m.earliest[key] = earliest
	m.latest[key] = latest
}

// Push appends messages to a partition's queue, to be returned by
// subsequent fetches in order.
func (m *MockClient) Push(topic string, partition int32, msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := queueKey(topic, partition)
	m.queues[key] = append(m.queues[key], msgs...)
}

// FetchCalls returns the number of Fetch invocations across all consumers.
func (m *MockClient) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

func (m *MockClient) FetchMetadata(_ context.Context, topic string) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if md, ok := m.metadata[topic]; ok {
		return md, nil
	}
	return &Metadata{Brokers: map[int32]Broker{}}, nil
}

func (m *MockClient) NewPartitionConsumer(_ context.Context, cfg ConsumerConfig) (PartitionConsumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	offset := cfg.InitialOffset
	key := queueKey(cfg.Topic, cfg.Partition)
	switch offset {
	case OffsetEarliest:
		offset = m.earliest[key]
	case OffsetLatest:
		offset = m.latest[key]
	}

	pc := &MockPartitionConsumer{
		client:    m,
		topic:     cfg.Topic,
		partition: cfg.Partition,
		offset:    offset,
		initial:   cfg.InitialOffset,
	}
	m.consumers = append(m.consumers, pc)
	return pc, nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockPartitionConsumer is the PartitionConsumer returned by MockClient.
type MockPartitionConsumer struct {
	client    *MockClient
	topic     string
	partition int32
	offset    int64
	initial   int64
	closed    bool
}

// InitialOffset returns the offset the consumer was constructed with,
// before sentinel resolution. Tests use it to assert trail-mode behavior.
func (c *MockPartitionConsumer) InitialOffset() int64 { return c.initial }

// Partition returns the partition this cursor reads.
func (c *MockPartitionConsumer) Partition() int32 { return c.partition }

func (c *MockPartitionConsumer) Fetch(_ context.Context) ([]Message, error) {
	m := c.client
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	m.fetchCalls++

	key := queueKey(c.topic, c.partition)
	var out []Message
	for _, msg := range m.queues[key] {
		if msg.Offset >= c.offset {
			out = append(out, msg)
		}
	}
	m.queues[key] = nil
	if len(out) > 0 {
		c.offset = out[len(out)-1].Offset + 1
	}
	return out, nil
}

func (c *MockPartitionConsumer) Offset() int64 {
	m := c.client
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.offset
}

func (c *MockPartitionConsumer) Close() error {
	m := c.client
	m.mu.Lock()
	defer m.mu.Unlock()
	c.closed = true
	return nil
}
