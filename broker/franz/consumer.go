package franz

import (
	"context"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/covey-io/covey/broker"
)

// partitionConsumer is a fetch cursor over one partition, pinned to the
// partition leader it was constructed with.
type partitionConsumer struct {
	parent    *Client
	topic     string
	partition int32
	leader    broker.Broker
	maxBytes  int32
	minBytes  int32
	maxWait   int32

	mu     sync.Mutex
	offset int64 // next offset to read; may hold a sentinel until resolved
	closed bool
}

var _ broker.PartitionConsumer = (*partitionConsumer)(nil)

// Offset returns the next offset to read.
func (pc *partitionConsumer) Offset() int64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.offset
}

// Fetch issues one fetch against the partition leader and returns the
// decoded messages at or past the cursor.
func (pc *partitionConsumer) Fetch(ctx context.Context) ([]broker.Message, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return nil, broker.ErrClosed
	}

	if pc.offset < 0 {
		resolved, err := pc.parent.listOffset(ctx, pc.topic, pc.partition, pc.leader.ID, pc.offset)
		if err != nil {
			return nil, err
		}
		pc.offset = resolved
	}

	req := kmsg.NewPtrFetchRequest()
	req.MaxWaitMillis = pc.maxWait
	req.MinBytes = pc.minBytes
	req.MaxBytes = pc.maxBytes

	reqTopic := kmsg.NewFetchRequestTopic()
	reqTopic.Topic = pc.topic
	reqPartition := kmsg.NewFetchRequestTopicPartition()
	reqPartition.Partition = pc.partition
	reqPartition.FetchOffset = pc.offset
	reqPartition.PartitionMaxBytes = pc.maxBytes
	reqTopic.Partitions = append(reqTopic.Partitions, reqPartition)
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, pc.parent.cl.Broker(int(pc.leader.ID)))
	if err != nil {
		return nil, fmt.Errorf("franz: fetch %s/%d failed: %w", pc.topic, pc.partition, err)
	}

	for _, t := range resp.Topics {
		if t.Topic != pc.topic {
			continue
		}
		for _, p := range t.Partitions {
			if p.Partition != pc.partition {
				continue
			}
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return nil, fmt.Errorf("franz: fetch %s/%d: %w", pc.topic, pc.partition, err)
			}

			msgs, err := decodeBatches(p.RecordBatches, pc.topic, pc.partition, pc.offset)
			if err != nil {
				return nil, fmt.Errorf("franz: fetch %s/%d: %w", pc.topic, pc.partition, err)
			}
			if len(msgs) > 0 {
				pc.offset = msgs[len(msgs)-1].Offset + 1
			}
			return msgs, nil
		}
	}
	return nil, nil
}

// Close releases the cursor. The shared kgo client stays open.
func (pc *partitionConsumer) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.closed = true
	return nil
}
