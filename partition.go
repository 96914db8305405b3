package covey

import (
	"context"

	"github.com/covey-io/covey/broker"
)

// Message aliases broker.Message so callers consuming through a group do
// not need to import the broker package.
type Message = broker.Message

// PartitionConsumer couples a claimed partition with its fetch cursor.
// Instances are created when a claim succeeds and closed when the claim is
// released; callers only ever see them inside Checkout callbacks.
type PartitionConsumer struct {
	topic     string
	partition int32
	cursor    broker.PartitionConsumer
}

// Topic returns the consumed topic.
func (pc *PartitionConsumer) Topic() string { return pc.topic }

// Partition returns the claimed partition id.
func (pc *PartitionConsumer) Partition() int32 { return pc.partition }

// Offset returns the next offset to read.
func (pc *PartitionConsumer) Offset() int64 { return pc.cursor.Offset() }

// Fetch returns the next batch of messages from the partition.
func (pc *PartitionConsumer) Fetch(ctx context.Context) ([]broker.Message, error) {
	return pc.cursor.Fetch(ctx)
}

func (pc *PartitionConsumer) close() error {
	return pc.cursor.Close()
}
