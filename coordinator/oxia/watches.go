package oxia

import (
	"context"
	"strings"
	"sync"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/covey-io/covey/coordinator"
)

// watchRegistry fans a single Oxia notification stream out to exact-path
// subscriptions and one-shot child-set watches.
type watchRegistry struct {
	mu     sync.Mutex
	exact  map[string]map[int]func(coordinator.Event)
	childs map[string][]func()
	nextID int
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{
		exact:  make(map[string]map[int]func(coordinator.Event)),
		childs: make(map[string][]func()),
	}
}

// oxiaSubscription implements coordinator.Subscription.
type oxiaSubscription struct {
	reg  *watchRegistry
	path string
	id   int
}

func (s *oxiaSubscription) Unsubscribe() {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if subs, ok := s.reg.exact[s.path]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.reg.exact, s.path)
		}
	}
}

func (r *watchRegistry) register(path string, cb func(coordinator.Event)) coordinator.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	if r.exact[path] == nil {
		r.exact[path] = make(map[int]func(coordinator.Event))
	}
	r.exact[path][id] = cb
	return &oxiaSubscription{reg: r, path: path, id: id}
}

func (r *watchRegistry) addChildWatch(parent string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.childs[parent] = append(r.childs[parent], fn)
}

// pump drains the notification stream until the context is cancelled or
// the stream closes, dispatching each notification to matching watches.
func (r *watchRegistry) pump(ctx context.Context, notifications oxiaclient.Notifications) {
	defer notifications.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications.Ch():
			if !ok {
				return
			}
			r.dispatch(convert(n))
		}
	}
}

// convert maps an Oxia notification to a coordinator event plus the
// child-set-changed discriminator.
func convert(n *oxiaclient.Notification) (coordinator.Event, bool) {
	ev := coordinator.Event{Path: n.Key}
	childSetChanged := false
	switch n.Type {
	case oxiaclient.KeyCreated:
		childSetChanged = true
	case oxiaclient.KeyDeleted, oxiaclient.KeyRangeRangeDeleted:
		ev.Deleted = true
		childSetChanged = true
	case oxiaclient.KeyModified:
	}
	return ev, childSetChanged
}

func (r *watchRegistry) dispatch(ev coordinator.Event, childSetChanged bool) {
	r.mu.Lock()
	var cbs []func(coordinator.Event)
	for _, cb := range r.exact[ev.Path] {
		cbs = append(cbs, cb)
	}

	var oneShots []func()
	if childSetChanged {
		if i := strings.LastIndexByte(ev.Path, '/'); i > 0 {
			parent := ev.Path[:i]
			oneShots = r.childs[parent]
			delete(r.childs, parent)
		}
	}
	r.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
	for _, fn := range oneShots {
		fn()
	}
}
