package region

import (
	"math"
	"sort"
)

// This file represents a single contig's merged interval set as a sorted
// []PosType of interval endpoints: interval k's start is at endpoints[2k],
// its end at endpoints[2k+1]. EndpointIndex is the result of searching that
// slice for a query position (biased by +1 so the search lines up with our
// left-closed, right-open interval convention); its low bit tells you
// whether the query position fell inside an interval.

// PosType is the coordinate type used throughout this package. It is an
// alias for int32, the same underlying type coverage.PosType and
// gap.PosType alias, so positions pass between this package and the
// coverage engine without explicit conversions.
type PosType = int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// SearchPosTypes returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInts(), except for PosType.
func SearchPosTypes(a []PosType, x PosType) EndpointIndex {
	return EndpointIndex(sort.Search(len(a), func(i int) bool { return a[i] >= x }))
}

// EndpointIndex is intended to represent the result of
// SearchPosTypes(endpoints, pos+1).
// NOTE THE "+1"!  This is necessary to get SearchPosTypes to line up with our
// usual left-closed right-open intervals.
type EndpointIndex uint32

// Contained returns whether we're inside an interval.
func (ei EndpointIndex) Contained() bool {
	return ei&1 != 0
}
