package covey

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPick_WorkedExamples(t *testing.T) {
	none := partitionRange{}

	tests := []struct {
		pnum int
		ids  []string
		id   string
		want partitionRange
		ok   bool
	}{
		{3, []string{"N1", "N2", "N3"}, "N1", partitionRange{0, 0}, true},
		{3, []string{"N1", "N2", "N3"}, "N2", partitionRange{1, 1}, true},
		{3, []string{"N1", "N2", "N3"}, "N3", partitionRange{2, 2}, true},
		{4, []string{"N2", "N4", "N3", "N1"}, "N3", partitionRange{2, 2}, true},
		{3, []string{"N1", "N2", "N3"}, "N4", none, false},
		{5, []string{"N1", "N2", "N3"}, "N1", partitionRange{0, 1}, true},
		{5, []string{"N1", "N2", "N3"}, "N2", partitionRange{2, 3}, true},
		{5, []string{"N1", "N2", "N3"}, "N3", partitionRange{4, 4}, true},
		{1, []string{"N1", "N2", "N3"}, "N2", none, false},
		{5, []string{"N1", "N2"}, "N1", partitionRange{0, 2}, true},
		{5, []string{"N1", "N2"}, "N2", partitionRange{3, 4}, true},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("pnum=%d,id=%s,k=%d", tc.pnum, tc.id, len(tc.ids)), func(t *testing.T) {
			got, ok := pick(tc.pnum, tc.ids, tc.id)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestPick_EmptyMembers(t *testing.T) {
	_, ok := pick(3, nil, "N1")
	assert.False(t, ok)
}

func TestPick_ZeroPartitions(t *testing.T) {
	_, ok := pick(0, []string{"N1", "N2"}, "N1")
	assert.False(t, ok)
}

// TestPick_CoverageAndDisjointness sweeps partition and member counts and
// verifies the union of all ranges is exactly [0, pnum-1] with no overlap.
func TestPick_CoverageAndDisjointness(t *testing.T) {
	for pnum := 1; pnum <= 16; pnum++ {
		for k := 1; k <= 10; k++ {
			ids := make([]string, k)
			for i := range ids {
				ids[i] = fmt.Sprintf("N%02d", i)
			}

			owners := make([]int, pnum)
			for _, id := range ids {
				rng, ok := pick(pnum, ids, id)
				if !ok {
					continue
				}
				require.LessOrEqual(t, rng.first, rng.last)
				require.GreaterOrEqual(t, rng.first, 0)
				require.LessOrEqual(t, rng.last, pnum-1)
				for p := rng.first; p <= rng.last; p++ {
					owners[p]++
				}
			}
			for p, n := range owners {
				assert.Equalf(t, 1, n, "pnum=%d k=%d: partition %d owned %d times", pnum, k, p, n)
			}
		}
	}
}

// TestPick_OrderIndependence verifies pick depends only on the sorted view
// of the member list.
func TestPick_OrderIndependence(t *testing.T) {
	ids := []string{"N1", "N2", "N3", "N4", "N5"}
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		shuffled := append([]string(nil), ids...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for _, id := range ids {
			want, wantOK := pick(7, ids, id)
			got, gotOK := pick(7, shuffled, id)
			require.Equal(t, wantOK, gotOK)
			assert.Equal(t, want, got)
		}
	}
}

// TestPick_MoreMembersThanPartitions verifies exactly pnum members receive
// a single-partition range and the rest receive none.
func TestPick_MoreMembersThanPartitions(t *testing.T) {
	for pnum := 1; pnum <= 5; pnum++ {
		k := pnum + 3
		ids := make([]string, k)
		for i := range ids {
			ids[i] = fmt.Sprintf("N%02d", i)
		}

		withRange := 0
		for i, id := range ids {
			rng, ok := pick(pnum, ids, id)
			if !ok {
				assert.GreaterOrEqualf(t, i, pnum, "pnum=%d: member %d should own a partition", pnum, i)
				continue
			}
			withRange++
			assert.Equal(t, rng.first, rng.last, "ranges must be single partitions when members outnumber partitions")
		}
		assert.Equal(t, pnum, withRange)
	}
}

func TestPick_DoesNotMutateInput(t *testing.T) {
	ids := []string{"N3", "N1", "N2"}
	_, _ = pick(3, ids, "N1")
	assert.Equal(t, []string{"N3", "N1", "N2"}, ids)
}
