package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// depthAt returns depth[pos], or 0 if pos falls past the end of the vector
// (the engine's stated convention for unmaterialized positions).
func depthAt(depth []uint16, pos int) uint16 {
	if pos < 0 || pos >= len(depth) {
		return 0
	}
	return depth[pos]
}

func assertDepthRange(t *testing.T, depth []uint16, from, to int, want uint16) {
	t.Helper()
	for pos := from; pos < to; pos++ {
		assert.Equalf(t, want, depthAt(depth, pos), "pos=%d", pos)
	}
}

// Scenario 1: single pair, no overlap.
func TestComputeDepthSinglePairNoOverlap(t *testing.T) {
	spans := []Span{{Start: 100, End: 150, KmerIndex: -1}, {Start: 200, End: 250, KmerIndex: -1}}
	depth := ComputeDepth(spans, false, nil)

	assertDepthRange(t, depth, 90, 100, 0)
	assertDepthRange(t, depth, 100, 150, 1)
	assertDepthRange(t, depth, 150, 200, 0)
	assertDepthRange(t, depth, 200, 250, 1)
	assertDepthRange(t, depth, 250, 260, 0)
}

// Scenario 2: overlapping mates clipped by ReadContig in "none" mode, then
// counted correctly by the depth computer. Reproduces the clip directly
// (first-of-pair clipped to the mate's start) since ReadContig needs a
// provider.Record; the depth-side invariant under test is that the clipped
// span set depths to exactly 1 across the full covered range.
func TestComputeDepthClippedOverlappingMates(t *testing.T) {
	// First-of-pair (100,180) with mate start 150 clips to (100,150).
	// Second-of-pair (150,200) is untouched.
	spans := []Span{{Start: 100, End: 150, KmerIndex: -1}, {Start: 150, End: 200, KmerIndex: -1}}
	depth := ComputeDepth(spans, false, nil)
	assertDepthRange(t, depth, 100, 150, 1)
	assertDepthRange(t, depth, 150, 200, 1)
}

// Scenario 3: exact same start mates in "none" mode — ReadContig rejects the
// first-of-pair read entirely, so only the second-of-pair span reaches the
// depth computer.
func TestComputeDepthExactSameStartMatesOnlyOneCounted(t *testing.T) {
	spans := []Span{{Start: 100, End: 150, KmerIndex: -1}}
	depth := ComputeDepth(spans, false, nil)
	assertDepthRange(t, depth, 100, 150, 1)
}

// Scenario 5: saturation. 1500 identical spans clamp to MaxDepth.
func TestComputeDepthSaturates(t *testing.T) {
	spans := make([]Span, 1500)
	for i := range spans {
		spans[i] = Span{Start: 100, End: 110, KmerIndex: -1}
	}
	depth := ComputeDepth(spans, false, nil)
	assertDepthRange(t, depth, 100, 110, MaxDepth)
}

func TestComputeDepthEmptyInput(t *testing.T) {
	depth := ComputeDepth(nil, false, nil)
	assert.Nil(t, depth)
}

// A span whose end exactly equals a region's start contributes zero to that
// region: depth at the span's End position itself must already be back to
// whatever it was before the span started (half-open convention).
func TestComputeDepthHalfOpenBoundary(t *testing.T) {
	spans := []Span{{Start: 10, End: 20, KmerIndex: -1}}
	depth := ComputeDepth(spans, false, nil)
	assert.EqualValues(t, 1, depthAt(depth, 19))
	assert.EqualValues(t, 0, depthAt(depth, 20))
}

func TestComputeDepthKmerWeighted(t *testing.T) {
	spans := []Span{
		{Start: 0, End: 10, KmerIndex: 0},
		{Start: 0, End: 10, KmerIndex: 1},
	}
	factors := KmerFactors{2.0, 0.5}
	depth := ComputeDepth(spans, true, factors)
	// floor(2.0 + 0.5) = 2
	assertDepthRange(t, depth, 0, 10, 2)
}

func TestComputeDepthUnsortedMaxEnd(t *testing.T) {
	// Spans sorted by Start, but an earlier span's End exceeds a later
	// span's End: maxEnd must come from a full scan, not just the last
	// element.
	spans := []Span{{Start: 0, End: 100, KmerIndex: -1}, {Start: 50, End: 60, KmerIndex: -1}}
	depth := ComputeDepth(spans, false, nil)
	require.Len(t, depth, 100)
	assertDepthRange(t, depth, 60, 100, 1)
}
