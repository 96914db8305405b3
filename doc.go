// Package covey implements a self-balancing consumer group for a
// partitioned, append-only log service.
//
// A group is a named set of processes that collectively consume every
// message of one topic: each partition is owned by exactly one member at a
// time, and each member persists its own per-partition read offset in the
// coordinator. Membership, partition ownership, and offsets live under a
// hierarchical ephemeral-node coordinator; when members join or leave, the
// survivors rebalance deterministically without talking to each other.
//
// Construct a group with NewConsumerGroup, supplying a coordinator.Client
// (see coordinator/oxia) and a broker.Client (see broker/franz), then
// drive consumption with Fetch or FetchLoop:
//
//	group, err := covey.NewConsumerGroup(ctx, "billing", bk, cz, "events", nil)
//	if err != nil { ... }
//	defer group.Close()
//
//	err = group.FetchLoop(ctx, func(partition int32, msgs []broker.Message) error {
//		for _, m := range msgs {
//			process(m)
//		}
//		return nil
//	})
package covey
