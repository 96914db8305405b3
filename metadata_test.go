package covey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covey-io/covey/broker"
)

func TestMetadataView_PartitionsSortedAndAvailable(t *testing.T) {
	ctx := context.Background()
	bk := broker.NewMockClient()
	bk.SetMetadata("events", &broker.Metadata{
		Brokers: map[int32]broker.Broker{1: {ID: 1, Host: "b1", Port: 9092}},
		Partitions: []broker.PartitionMetadata{
			{ID: 2, Leader: 1},
			{ID: 0, Leader: 1},
			{ID: 1, Leader: -1}, // leaderless, excluded
		},
	})

	view := newMetadataView(bk, "events")
	parts, err := view.partitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, int32(0), parts[0].ID)
	assert.Equal(t, int32(2), parts[1].ID)
}

func TestMetadataView_UnknownTopic(t *testing.T) {
	ctx := context.Background()
	view := newMetadataView(broker.NewMockClient(), "missing")

	parts, err := view.partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, parts)

	_, ok, err := view.leader(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadataView_Leader(t *testing.T) {
	ctx := context.Background()
	bk := broker.NewMockClient()
	bk.SetMetadata("events", &broker.Metadata{
		Brokers: map[int32]broker.Broker{
			1: {ID: 1, Host: "b1", Port: 9092},
			2: {ID: 2, Host: "b2", Port: 9092},
		},
		Partitions: []broker.PartitionMetadata{
			{ID: 0, Leader: 2},
			{ID: 1, Leader: 7}, // leader id not in broker list
		},
	})

	view := newMetadataView(bk, "events")

	b, ok, err := view.leader(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b2", b.Host)

	_, ok, err = view.leader(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = view.leader(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadataView_CachesUntilReload(t *testing.T) {
	ctx := context.Background()
	bk := broker.NewMockClient()
	bk.SetMetadata("events", &broker.Metadata{
		Brokers:    map[int32]broker.Broker{1: {ID: 1}},
		Partitions: []broker.PartitionMetadata{{ID: 0, Leader: 1}},
	})

	view := newMetadataView(bk, "events")
	parts, err := view.partitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	// A new partition appears; the cached view must not see it until reload.
	bk.SetMetadata("events", &broker.Metadata{
		Brokers:    map[int32]broker.Broker{1: {ID: 1}},
		Partitions: []broker.PartitionMetadata{{ID: 0, Leader: 1}, {ID: 1, Leader: 1}},
	})

	parts, err = view.partitions(ctx)
	require.NoError(t, err)
	assert.Len(t, parts, 1)

	require.NoError(t, view.reload(ctx))
	parts, err = view.partitions(ctx)
	require.NoError(t, err)
	assert.Len(t, parts, 2)
}
