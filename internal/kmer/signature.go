package kmer

// Order returns the kmer length k implied by a profile with numKmers
// columns, assuming the canonical 4^k enumeration over {A,C,G,T}. Profiles
// whose column count isn't a power of four (hand-curated or down-sampled
// kmer sets) have no well-defined order; ok is false in that case (Run in
// cmd/covdepth rejects such a profile as an input mismatch).
func Order(numKmers int) (order int, ok bool) {
	if numKmers <= 0 {
		return 0, false
	}
	n := numKmers
	for n > 1 {
		if n%4 != 0 {
			return 0, false
		}
		n /= 4
		order++
	}
	return order, true
}

// baseCode maps an upper- or lower-case base to its 2-bit code; ok is false
// for anything other than A/C/G/T (including N, the common ambiguity code).
func baseCode(b byte) (code byte, ok bool) {
	switch b {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	default:
		return 0, false
	}
}

// Index encodes the first `order` bases of seq into a value in
// [0, 4^order), the canonical lexicographic rank of that kmer. It returns
// ok=false if seq is shorter than order or contains a base outside
// {A,C,G,T}, in which case the read's depth contribution should be left
// unweighted rather than guessed.
func Index(seq []byte, order int) (index int32, ok bool) {
	if len(seq) < order {
		return 0, false
	}
	var idx int32
	for i := 0; i < order; i++ {
		code, valid := baseCode(seq[i])
		if !valid {
			return 0, false
		}
		idx = idx<<2 | int32(code)
	}
	return idx, true
}
