package coverage

// ComputeDepth sweeps spans (already filtered, clipped, and sorted by
// Start) through an overlap tracker and returns a dense depth vector
// indexed by 0-based reference position, saturated to [0, MaxDepth]. An
// empty spans slice returns a nil vector: no allocation beyond a
// zero-length sentinel.
//
// weighted/kmerFactors select kmer-weighted depth; kmerFactors must cover
// every KmerIndex present in spans when weighted is true.
func ComputeDepth(spans []Span, weighted bool, kmerFactors KmerFactors) []uint16 {
	if len(spans) == 0 {
		return nil
	}
	maxEnd := spans[len(spans)-1].End
	for _, s := range spans {
		if s.End > maxEnd {
			maxEnd = s.End
		}
	}
	depth := make([]uint16, maxEnd)

	tracker := newOverlapTracker(weighted, kmerFactors)
	var materialized PosType // one past the last position already written

	for _, s := range spans {
		for materialized < s.Start {
			tracker.removeNonOverlaps(materialized)
			depth[materialized] = tracker.coverageAt()
			materialized++
		}
		tracker.add(s)
	}
	// Positions at/after the last span's Start but before maxEnd still need
	// their depth materialized; the tracker already holds every span that
	// can possibly contribute from here on.
	for materialized < maxEnd {
		tracker.removeNonOverlaps(materialized)
		depth[materialized] = tracker.coverageAt()
		materialized++
	}
	return depth
}
