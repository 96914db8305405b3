package covey

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/covey-io/covey/broker"
	"github.com/covey-io/covey/coordinator"
	"github.com/covey-io/covey/guid"
	"github.com/covey-io/covey/logging"
)

// Errors returned by consumer group operations.
var (
	// ErrClosed is returned when operations are attempted on a closed group.
	ErrClosed = errors.New("covey: consumer group closed")

	// ErrNoLeader is returned when a claimed partition has no known leader
	// broker. This is a fatal configuration error.
	ErrNoLeader = errors.New("covey: partition has no leader")

	// ErrClaimTimeout is returned when a contended partition claim was not
	// released within ClaimTimeout.
	ErrClaimTimeout = errors.New("covey: claim timed out")
)

// SkipCommit, returned from a Checkout or Fetch callback, suppresses the
// automatic offset commit for that call without being treated as a failure.
var SkipCommit = errors.New("covey: skip commit")

// Recorder receives metrics observations from a consumer group. The
// metrics package provides a Prometheus-backed implementation.
type Recorder interface {
	RecordRebalance(durationSeconds float64, success bool)
	SetClaimed(n int)
	RecordFetch(result string, messages int)
	RecordCommit(success bool)
}

// Fetch result labels passed to Recorder.RecordFetch.
const (
	fetchResultMessages  = "messages"
	fetchResultEmpty     = "empty"
	fetchResultUnclaimed = "unclaimed"
)

type nopRecorder struct{}

func (nopRecorder) RecordRebalance(float64, bool) {}
func (nopRecorder) SetClaimed(int)                {}
func (nopRecorder) RecordFetch(string, int)       {}
func (nopRecorder) RecordCommit(bool)             {}

// ConsumerGroup is one member of a named consumer group. All methods are
// safe for concurrent use; a single group-wide mutex serializes rebalance,
// checkout, and close.
type ConsumerGroup struct {
	name     string
	topic    string
	memberID string

	cz   coordinator.Client
	bk   broker.Client
	meta *metadataView
	cfg  *Config
	log  *logging.Logger
	rec  Recorder

	mu         sync.Mutex
	consumers  []*PartitionConsumer // rotation order; head is fetched next
	registered bool
	started    bool // run goroutine launched
	closed     bool

	// rebalanceCh is the single-slot pending indicator: watch callbacks
	// enqueue here, the run goroutine drains. Overlapping triggers coalesce.
	rebalanceCh chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewConsumerGroup creates a group member named by the shared group name,
// consuming topic through the given broker and coordinator clients. Unless
// cfg.Register is false, the member joins the group and runs its initial
// rebalance before returning.
func NewConsumerGroup(ctx context.Context, name string, bk broker.Client, cz coordinator.Client, topic string, cfg *Config) (*ConsumerGroup, error) {
	if name == "" {
		return nil, errors.New("covey: group name is required")
	}
	if topic == "" {
		return nil, errors.New("covey: topic is required")
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(topic, '/') {
		return nil, errors.New("covey: group name and topic must not contain '/'")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	memberID := name + "-" + guid.Next()
	rec := cfg.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	g := &ConsumerGroup{
		name:        name,
		topic:       topic,
		memberID:    memberID,
		cz:          cz,
		bk:          bk,
		meta:        newMetadataView(bk, topic),
		cfg:         cfg,
		log:         cfg.logger().With(map[string]any{"group": name, "member": memberID}),
		rec:         rec,
		rebalanceCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	if cfg.Register {
		if err := g.Register(ctx); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Name returns the shared group name.
func (g *ConsumerGroup) Name() string { return g.name }

// Topic returns the consumed topic.
func (g *ConsumerGroup) Topic() string { return g.topic }

// MemberID returns this member's unique id.
func (g *ConsumerGroup) MemberID() string { return g.memberID }

// Register joins the member set: it creates the registry paths, publishes
// this member's ephemeral id node, starts the rebalance goroutine, and
// runs the initial rebalance. Idempotent.
func (g *ConsumerGroup) Register(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.registered {
		g.mu.Unlock()
		return nil
	}
	g.registered = true
	g.mu.Unlock()

	for _, path := range []string{
		membersPath(g.name),
		ownersPath(g.name, g.topic),
		offsetsPath(g.name, g.topic),
	} {
		if err := g.cz.MkdirAll(ctx, path); err != nil {
			return fmt.Errorf("covey: create registry path %s: %w", path, err)
		}
	}

	if err := g.cz.Create(ctx, memberPath(g.name, g.memberID), memberPayload, true); err != nil {
		return fmt.Errorf("covey: register member: %w", err)
	}
	g.log.Info("registered member")

	g.mu.Lock()
	g.started = true
	g.mu.Unlock()
	go g.run()

	// The initial rebalance also installs the members watch.
	return g.rebalance(ctx)
}

// notifyRebalance schedules a rebalance. Safe to call from coordinator
// dispatch goroutines: it never blocks and never takes the group lock.
func (g *ConsumerGroup) notifyRebalance() {
	select {
	case g.rebalanceCh <- struct{}{}:
	default:
	}
}

// run drains rebalance triggers until the group closes. Failed rebalances
// are retried after LoopDelay.
func (g *ConsumerGroup) run() {
	defer close(g.doneCh)
	for {
		select {
		case <-g.stopCh:
			return
		case <-g.rebalanceCh:
			if err := g.rebalance(context.Background()); err != nil {
				g.log.Errorf("rebalance failed", map[string]any{"error": err.Error()})
				select {
				case <-g.stopCh:
					return
				case <-time.After(g.cfg.LoopDelay):
				}
				g.notifyRebalance()
			}
		}
	}
}

// Claimed returns the partition ids currently held, sorted ascending.
func (g *ConsumerGroup) Claimed() []int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int32, 0, len(g.consumers))
	for _, pc := range g.consumers {
		ids = append(ids, pc.partition)
	}
	sortInt32s(ids)
	return ids
}

// Partitions returns the topic's available partitions, sorted by id.
func (g *ConsumerGroup) Partitions(ctx context.Context) ([]broker.PartitionMetadata, error) {
	return g.meta.partitions(ctx)
}

// Leader returns the leader broker of the given partition, or ok=false
// when the partition or its leader is unknown.
func (g *ConsumerGroup) Leader(ctx context.Context, partition int32) (broker.Broker, bool, error) {
	return g.meta.leader(ctx, partition)
}

// Reload invalidates the metadata cache and refetches it.
func (g *ConsumerGroup) Reload(ctx context.Context) error {
	return g.meta.reload(ctx)
}

// Offset reads the stored offset for a partition. An absent or empty
// offset node reads as 0.
func (g *ConsumerGroup) Offset(ctx context.Context, partition int32) (int64, error) {
	data, ok, err := g.cz.Get(ctx, offsetPath(g.name, g.topic, partition))
	if err != nil {
		return 0, fmt.Errorf("covey: read offset: %w", err)
	}
	if !ok || len(data) == 0 {
		return 0, nil
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("covey: parse offset %q: %w", data, err)
	}
	return offset, nil
}

// Commit stores the next offset to read for a partition, creating the
// offset node on first commit.
func (g *ConsumerGroup) Commit(ctx context.Context, partition int32, offset int64) error {
	path := offsetPath(g.name, g.topic, partition)
	data := []byte(strconv.FormatInt(offset, 10))

	err := g.cz.Set(ctx, path, data)
	if errors.Is(err, coordinator.ErrNoNode) {
		err = g.cz.Create(ctx, path, data, false)
		if errors.Is(err, coordinator.ErrNodeExists) {
			// Lost the creation race; the node exists now.
			err = g.cz.Set(ctx, path, data)
		}
	}
	g.rec.RecordCommit(err == nil)
	if err != nil {
		return fmt.Errorf("covey: commit offset for partition %d: %w", partition, err)
	}
	g.log.Debugf("committed offset", map[string]any{"partition": partition, "offset": offset})
	return nil
}

// CheckoutOption configures a single Checkout, Fetch, or FetchLoop call.
type CheckoutOption func(*checkoutOptions)

type checkoutOptions struct {
	commit    bool
	loopDelay time.Duration
}

// WithCommit controls the automatic offset commit after a successful
// callback. Commit defaults to on.
func WithCommit(commit bool) CheckoutOption {
	return func(o *checkoutOptions) {
		o.commit = commit
	}
}

// WithLoopDelay overrides the configured LoopDelay for one FetchLoop call.
func WithLoopDelay(d time.Duration) CheckoutOption {
	return func(o *checkoutOptions) {
		if d > 0 {
			o.loopDelay = d
		}
	}
}

// Checkout borrows one claimed partition consumer for the duration of fn,
// rotating through claimed partitions on successive calls. It returns
// false when no partition is claimed, true otherwise.
//
// fn runs while the group lock is held, so slow callbacks back-pressure
// every other operation on this instance; in exchange, callbacks for a
// given partition never run concurrently. The offset is read under the
// lock and committed after the lock is released, so concurrent Checkout
// calls that land on the same partition may issue their commits in either
// order. A nil return commits the consumer's offset (unless
// WithCommit(false) was given), SkipCommit suppresses the commit, and any
// other error propagates without committing.
func (g *ConsumerGroup) Checkout(ctx context.Context, fn func(*PartitionConsumer) error, opts ...CheckoutOption) (bool, error) {
	options := checkoutOptions{commit: true}
	for _, opt := range opts {
		opt(&options)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false, ErrClosed
	}
	if len(g.consumers) == 0 {
		g.mu.Unlock()
		return false, nil
	}

	g.consumers = append(g.consumers[1:], g.consumers[0])
	pc := g.consumers[0]
	err := fn(pc)
	partition := pc.partition
	offset := pc.Offset()
	g.mu.Unlock()

	if errors.Is(err, SkipCommit) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	if options.commit {
		if cerr := g.Commit(ctx, partition, offset); cerr != nil {
			return true, cerr
		}
	}
	return true, nil
}

// Fetch checks out the next claimed partition, fetches one batch from it,
// and invokes fn with the partition id and messages. It returns false when
// no partition is claimed.
func (g *ConsumerGroup) Fetch(ctx context.Context, fn func(partition int32, msgs []broker.Message) error, opts ...CheckoutOption) (bool, error) {
	claimed, _, err := g.fetch(ctx, fn, opts...)
	return claimed, err
}

func (g *ConsumerGroup) fetch(ctx context.Context, fn func(int32, []broker.Message) error, opts ...CheckoutOption) (claimed, hadMessages bool, err error) {
	claimed, err = g.Checkout(ctx, func(pc *PartitionConsumer) error {
		msgs, ferr := pc.Fetch(ctx)
		if ferr != nil {
			return ferr
		}
		hadMessages = len(msgs) > 0
		result := fetchResultEmpty
		if hadMessages {
			result = fetchResultMessages
		}
		g.rec.RecordFetch(result, len(msgs))
		return fn(pc.partition, msgs)
	}, opts...)
	if err == nil && !claimed {
		g.rec.RecordFetch(fetchResultUnclaimed, 0)
	}
	return claimed, hadMessages, err
}

// FetchLoop fetches in an infinite loop, sleeping LoopDelay whenever an
// iteration claimed nothing or delivered no messages. When no partition is
// claimed, fn is additionally invoked with partition -1 and no messages.
//
// The loop exits only through context cancellation, a closed group, or an
// error returned by fn or the fetch itself. Iterations broken by an error
// do not commit.
func (g *ConsumerGroup) FetchLoop(ctx context.Context, fn func(partition int32, msgs []broker.Message) error, opts ...CheckoutOption) error {
	options := checkoutOptions{commit: true}
	for _, opt := range opts {
		opt(&options)
	}
	delay := g.cfg.LoopDelay
	if options.loopDelay > 0 {
		delay = options.loopDelay
	}

	for {
		claimed, hadMessages, err := g.fetch(ctx, fn, opts...)
		if err != nil {
			return err
		}
		if !claimed {
			if err := fn(-1, nil); err != nil && !errors.Is(err, SkipCommit) {
				return err
			}
		}
		if !claimed || !hadMessages {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Close releases all claimed partitions, removes this member from the
// group, and closes the coordinator session. Other members rebalance once
// the coordinator drops this member's ephemeral nodes.
func (g *ConsumerGroup) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	wasRegistered := g.registered
	wasStarted := g.started

	ctx := context.Background()
	g.releaseAllLocked(ctx)
	if wasRegistered {
		_ = g.cz.Delete(ctx, memberPath(g.name, g.memberID))
	}
	g.mu.Unlock()

	if wasStarted {
		close(g.stopCh)
		<-g.doneCh
	}

	g.log.Info("closed consumer group")
	return g.cz.Close()
}

func sortInt32s(s []int32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
