package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	cli := NewMockClient()

	require.NoError(t, cli.Create(ctx, "/consumers/g/ids/m1", []byte("{}"), true))
	assert.ErrorIs(t, cli.Create(ctx, "/consumers/g/ids/m1", []byte("{}"), true), ErrNodeExists)

	data, ok, err := cli.Get(ctx, "/consumers/g/ids/m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("{}"), data)

	require.NoError(t, cli.Delete(ctx, "/consumers/g/ids/m1"))
	// Idempotent on missing nodes.
	require.NoError(t, cli.Delete(ctx, "/consumers/g/ids/m1"))

	_, ok, err = cli.Get(ctx, "/consumers/g/ids/m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockClient_SetRequiresNode(t *testing.T) {
	ctx := context.Background()
	cli := NewMockClient()

	assert.ErrorIs(t, cli.Set(ctx, "/consumers/g/offsets/t/0", []byte("5")), ErrNoNode)

	require.NoError(t, cli.Create(ctx, "/consumers/g/offsets/t/0", []byte("0"), false))
	require.NoError(t, cli.Set(ctx, "/consumers/g/offsets/t/0", []byte("5")))

	data, ok, err := cli.Get(ctx, "/consumers/g/offsets/t/0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", string(data))
}

func TestMockClient_ChildrenAndWatch(t *testing.T) {
	ctx := context.Background()
	cluster := NewMockCluster()
	cli := cluster.Client()

	require.NoError(t, cli.Create(ctx, "/consumers/g/ids/b", []byte("{}"), true))
	require.NoError(t, cli.Create(ctx, "/consumers/g/ids/a", []byte("{}"), true))

	fired := make(chan struct{}, 1)
	names, err := cli.Children(ctx, "/consumers/g/ids", func() { fired <- struct{}{} })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	// Data-only changes must not consume the child watch.
	require.NoError(t, cli.Set(ctx, "/consumers/g/ids/a", []byte("x")))
	select {
	case <-fired:
		t.Fatal("child watch fired on a data change")
	default:
	}

	require.NoError(t, cli.Create(ctx, "/consumers/g/ids/c", []byte("{}"), true))
	<-fired

	// The watch is one-shot.
	require.NoError(t, cli.Delete(ctx, "/consumers/g/ids/c"))
	select {
	case <-fired:
		t.Fatal("one-shot child watch fired twice")
	default:
	}
}

func TestMockClient_RegisterWatch(t *testing.T) {
	ctx := context.Background()
	cli := NewMockClient()

	events := make(chan Event, 4)
	sub, err := cli.Register("/consumers/g/owners/t/0", func(ev Event) { events <- ev })
	require.NoError(t, err)

	require.NoError(t, cli.Create(ctx, "/consumers/g/owners/t/0", []byte("m1"), true))
	ev := <-events
	assert.False(t, ev.Deleted)

	require.NoError(t, cli.Delete(ctx, "/consumers/g/owners/t/0"))
	ev = <-events
	assert.True(t, ev.Deleted)
	assert.Equal(t, "/consumers/g/owners/t/0", ev.Path)

	sub.Unsubscribe()
	require.NoError(t, cli.Create(ctx, "/consumers/g/owners/t/0", []byte("m2"), true))
	select {
	case <-events:
		t.Fatal("unsubscribed watch fired")
	default:
	}
}

func TestMockClient_ExpireSessionDropsEphemerals(t *testing.T) {
	ctx := context.Background()
	cluster := NewMockCluster()
	a := cluster.Client()
	b := cluster.Client()

	require.NoError(t, a.Create(ctx, "/consumers/g/ids/a", []byte("{}"), true))
	require.NoError(t, a.Create(ctx, "/consumers/g/offsets/t/0", []byte("3"), false))
	require.NoError(t, b.Create(ctx, "/consumers/g/ids/b", []byte("{}"), true))

	events := make(chan Event, 1)
	_, err := b.Register("/consumers/g/ids/a", func(ev Event) { events <- ev })
	require.NoError(t, err)

	a.ExpireSession()

	ev := <-events
	assert.True(t, ev.Deleted)

	// Ephemerals owned by a are gone, persistent nodes survive.
	names, err := b.Children(ctx, "/consumers/g/ids", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)

	_, ok, err := b.Get(ctx, "/consumers/g/offsets/t/0")
	require.NoError(t, err)
	assert.True(t, ok)

	// The expired session rejects further operations.
	assert.ErrorIs(t, a.MkdirAll(ctx, "/x"), ErrClosed)
}

func TestInstrumentedClient_RecordsOps(t *testing.T) {
	ctx := context.Background()

	type obs struct {
		op      string
		success bool
	}
	var seen []obs
	rec := recorderFunc(func(op string, _ float64, success bool) {
		seen = append(seen, obs{op, success})
	})

	cli := NewInstrumentedClient(NewMockClient(), rec)
	require.NoError(t, cli.Create(ctx, "/a", nil, false))
	_, _, _ = cli.Get(ctx, "/a")
	_ = cli.Create(ctx, "/a", nil, false) // exists → failure observation

	require.Len(t, seen, 3)
	assert.Equal(t, obs{OpCreate, true}, seen[0])
	assert.Equal(t, obs{OpGet, true}, seen[1])
	assert.Equal(t, obs{OpCreate, false}, seen[2])
}

type recorderFunc func(op string, durationSeconds float64, success bool)

func (f recorderFunc) RecordOp(op string, d float64, success bool) { f(op, d, success) }
