package guid

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_Format(t *testing.T) {
	id := Next()
	parts := strings.Split(id, "-")
	require.GreaterOrEqual(t, len(parts), 4, "guid %q should have at least 4 dash-separated parts", id)
	assert.NotEmpty(t, parts[0])
}

func TestNext_DistinctUnderConcurrency(t *testing.T) {
	const n = 500

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id := Next()
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, n, "every concurrent call must return a distinct guid")
}

func TestNextCounter_AtomicAdvance(t *testing.T) {
	const (
		workers = 10
		calls   = 50
	)

	before := counter.Load()

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				NextCounter()
			}
		}()
	}
	wg.Wait()

	after := counter.Load()
	// The counter space is large enough that this test never crosses the
	// wrap point unless some other test already pushed it close.
	assert.Equal(t, int32(workers*calls), after-before)
}

func TestNextCounter_Wrap(t *testing.T) {
	counter.Store(maxCounter - 1)
	got := NextCounter()
	assert.Equal(t, int32(1), got, "counter must wrap to 1 at the 31-bit boundary")
}
