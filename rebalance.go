package covey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/covey-io/covey/broker"
	"github.com/covey-io/covey/coordinator"
)

// rebalance recomputes this member's assignment from the live member set
// and reconciles claims: revoked partitions are released, newly owned ones
// claimed. It also installs a fresh one-shot watch on the members path so
// the next membership change triggers the next rebalance.
func (g *ConsumerGroup) rebalance(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}

	start := time.Now()
	err := g.rebalanceLocked(ctx)
	g.rec.RecordRebalance(time.Since(start).Seconds(), err == nil)
	g.rec.SetClaimed(len(g.consumers))
	return err
}

func (g *ConsumerGroup) rebalanceLocked(ctx context.Context) error {
	if err := g.meta.reload(ctx); err != nil {
		return fmt.Errorf("covey: reload metadata: %w", err)
	}

	members, err := g.cz.Children(ctx, membersPath(g.name), g.notifyRebalance)
	if err != nil {
		return fmt.Errorf("covey: list members: %w", err)
	}

	partitions, err := g.meta.partitions(ctx)
	if err != nil {
		return err
	}

	rng, ok := pick(len(partitions), members, g.memberID)
	if !ok {
		g.log.Infof("rebalanced to empty assignment", map[string]any{
			"members":    len(members),
			"partitions": len(partitions),
		})
		g.releaseAllLocked(ctx)
		return nil
	}

	desired := make(map[int32]bool, rng.last-rng.first+1)
	for i := rng.first; i <= rng.last; i++ {
		desired[partitions[i].ID] = true
	}

	// Release what we hold but no longer own.
	kept := g.consumers[:0]
	for _, pc := range g.consumers {
		if desired[pc.partition] {
			kept = append(kept, pc)
			continue
		}
		g.releaseOne(ctx, pc)
	}
	g.consumers = kept

	// Claim what we own but do not hold yet, in ascending order.
	for i := rng.first; i <= rng.last; i++ {
		if err := g.claimLocked(ctx, partitions[i]); err != nil {
			return err
		}
	}

	g.log.Infof("rebalanced", map[string]any{
		"members":    len(members),
		"partitions": len(partitions),
		"claimed":    len(g.consumers),
	})
	return nil
}

// releaseAllLocked releases every held partition and clears the local
// consumer list.
func (g *ConsumerGroup) releaseAllLocked(ctx context.Context) {
	for _, pc := range g.consumers {
		g.releaseOne(ctx, pc)
	}
	g.consumers = nil
}

// releaseOne deletes the owner node (idempotent on missing nodes) and
// closes the local cursor.
func (g *ConsumerGroup) releaseOne(ctx context.Context, pc *PartitionConsumer) {
	if err := g.cz.Delete(ctx, ownerPath(g.name, g.topic, pc.partition)); err != nil {
		g.log.Warnf("failed to delete owner node", map[string]any{
			"partition": pc.partition,
			"error":     err.Error(),
		})
	}
	if err := pc.close(); err != nil {
		g.log.Warnf("failed to close partition consumer", map[string]any{
			"partition": pc.partition,
			"error":     err.Error(),
		})
	}
	g.log.Infof("released partition", map[string]any{"partition": pc.partition})
}

// claimLocked asserts ownership of a partition by creating its ephemeral
// owner node, then constructs the local fetch cursor. A contended claim
// watches the existing owner node and retries when it disappears, up to
// ClaimTimeout. Idempotent for partitions already held.
func (g *ConsumerGroup) claimLocked(ctx context.Context, pm broker.PartitionMetadata) error {
	if g.holdsLocked(pm.ID) {
		return nil
	}
	path := ownerPath(g.name, g.topic, pm.ID)

	timeout := time.NewTimer(g.cfg.ClaimTimeout)
	defer timeout.Stop()

	attempt := 0
	for {
		attempt++
		err := g.cz.Create(ctx, path, []byte(g.memberID), true)
		if err == nil {
			break
		}
		if !errors.Is(err, coordinator.ErrNodeExists) {
			return fmt.Errorf("covey: claim partition %d: %w", pm.ID, err)
		}

		// Contended: wait for the current owner to release, then retry.
		deleted := make(chan struct{}, 1)
		sub, err := g.cz.Register(path, func(ev coordinator.Event) {
			if ev.Deleted {
				select {
				case deleted <- struct{}{}:
				default:
				}
			}
		})
		if err != nil {
			return fmt.Errorf("covey: watch owner of partition %d: %w", pm.ID, err)
		}

		// The owner may have vanished between the failed create and the
		// watch registration; retry immediately if so.
		exists, err := g.cz.Exists(ctx, path)
		if err != nil {
			sub.Unsubscribe()
			return fmt.Errorf("covey: check owner of partition %d: %w", pm.ID, err)
		}
		if !exists {
			sub.Unsubscribe()
			continue
		}

		select {
		case <-deleted:
			sub.Unsubscribe()
		case <-timeout.C:
			sub.Unsubscribe()
			return fmt.Errorf("covey: partition %d still owned after %s: %w",
				pm.ID, g.cfg.ClaimTimeout, ErrClaimTimeout)
		case <-ctx.Done():
			sub.Unsubscribe()
			return ctx.Err()
		}
	}

	pc, err := g.newConsumerLocked(ctx, pm)
	if err != nil {
		// Do not hold a claim we cannot consume.
		_ = g.cz.Delete(ctx, path)
		return err
	}
	g.consumers = append(g.consumers, pc)
	g.log.Infof("claimed partition", map[string]any{
		"partition": pm.ID,
		"attempts":  attempt,
	})
	return nil
}

// newConsumerLocked builds the fetch cursor for a freshly claimed
// partition, resuming from the stored offset when one exists.
func (g *ConsumerGroup) newConsumerLocked(ctx context.Context, pm broker.PartitionMetadata) (*PartitionConsumer, error) {
	stored, err := g.Offset(ctx, pm.ID)
	if err != nil {
		return nil, err
	}
	initial := stored
	if stored <= 0 {
		if g.cfg.Trail {
			initial = broker.OffsetLatest
		} else {
			initial = broker.OffsetEarliest
		}
	}

	leader, ok, err := g.meta.leader(ctx, pm.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("covey: partition %d: %w", pm.ID, ErrNoLeader)
	}

	cursor, err := g.bk.NewPartitionConsumer(ctx, broker.ConsumerConfig{
		Topic:         g.topic,
		Partition:     pm.ID,
		Leader:        leader,
		InitialOffset: initial,
		MaxBytes:      g.cfg.MaxBytes,
		MinBytes:      g.cfg.MinBytes,
		MaxWaitMS:     g.cfg.MaxWaitMS,
	})
	if err != nil {
		return nil, fmt.Errorf("covey: open partition consumer %d: %w", pm.ID, err)
	}
	return &PartitionConsumer{topic: g.topic, partition: pm.ID, cursor: cursor}, nil
}

func (g *ConsumerGroup) holdsLocked(partition int32) bool {
	for _, pc := range g.consumers {
		if pc.partition == partition {
			return true
		}
	}
	return false
}
