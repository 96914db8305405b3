package covey

import (
	"context"
	"sort"
	"sync"

	"github.com/covey-io/covey/broker"
)

// metadataView caches the cluster metadata for the group's topic. It is
// loaded lazily, kept until reload invalidates it, and always refreshed at
// the start of a rebalance.
type metadataView struct {
	client broker.Client
	topic  string

	mu     sync.Mutex
	cached *broker.Metadata
}

func newMetadataView(client broker.Client, topic string) *metadataView {
	return &metadataView{client: client, topic: topic}
}

// snapshot returns the cached metadata, fetching it if absent.
func (v *metadataView) snapshot(ctx context.Context) (*broker.Metadata, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cached != nil {
		return v.cached, nil
	}
	md, err := v.client.FetchMetadata(ctx, v.topic)
	if err != nil {
		return nil, err
	}
	v.cached = md
	return md, nil
}

// reload invalidates the cache and refetches.
func (v *metadataView) reload(ctx context.Context) error {
	v.mu.Lock()
	v.cached = nil
	v.mu.Unlock()
	_, err := v.snapshot(ctx)
	return err
}

// partitions returns the available partitions (those with a live leader)
// sorted ascending by partition id. Unknown topics yield an empty slice.
func (v *metadataView) partitions(ctx context.Context) ([]broker.PartitionMetadata, error) {
	md, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]broker.PartitionMetadata, 0, len(md.Partitions))
	for _, p := range md.Partitions {
		if p.HasLeader() {
			available = append(available, p)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })
	return available, nil
}

// leader returns the broker record of the partition's leader, or ok=false
// when the partition or its leader is unknown.
func (v *metadataView) leader(ctx context.Context, partition int32) (broker.Broker, bool, error) {
	md, err := v.snapshot(ctx)
	if err != nil {
		return broker.Broker{}, false, err
	}
	for _, p := range md.Partitions {
		if p.ID != partition || !p.HasLeader() {
			continue
		}
		b, ok := md.Brokers[p.Leader]
		return b, ok, nil
	}
	return broker.Broker{}, false, nil
}
