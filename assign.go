package covey

import "sort"

// partitionRange is a contiguous, inclusive range of partition indexes.
type partitionRange struct {
	first int
	last  int
}

// pick maps (partition count, member ids, own id) to the contiguous range
// of partition indexes this member owns, or ok=false when it owns none.
//
// Members sort lexicographically and split the partition space into
// contiguous slices: the first pnum%k members take slices of the larger
// size ceil(pnum/k), the rest one less. When pnum divides evenly, every
// member takes pnum/k. The function is pure; every member computes the
// same global assignment independently, so the ranges of all members
// partition [0, pnum-1] exactly.
func pick(pnum int, ids []string, id string) (partitionRange, bool) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	k := len(sorted)
	if k == 0 {
		return partitionRange{}, false
	}
	pos := sort.SearchStrings(sorted, id)
	if pos >= k || sorted[pos] != id {
		return partitionRange{}, false
	}

	remainder := pnum % k

	// step is the larger slice size: the even split of the smallest
	// multiple of k covering pnum.
	evenStepParts := pnum
	if remainder != 0 {
		evenStepParts += k - remainder
	}
	step := evenStepParts / k

	var first, last int
	if remainder == 0 || pos < remainder {
		first = pos * step
		last = (pos+1)*step - 1
	} else {
		secondaryStep := step - 1
		secondaryStart := remainder * step
		q := pos - remainder
		first = secondaryStart + q*secondaryStep
		last = secondaryStart + (q+1)*secondaryStep - 1
	}
	if last > pnum-1 {
		last = pnum - 1
	}
	if last < 0 || last < first {
		return partitionRange{}, false
	}
	return partitionRange{first: first, last: last}, true
}
