// Package coverage implements the per-base depth engine: the Span Reader,
// the streaming overlap tracker, the Depth Computer and the Region Writer.
// It is grounded on the teacher's pileup subtree (pileup/common.go,
// pileup/snp/basestrand.go), generalized from per-base-and-strand SNP piles
// to plain saturating depth counts.
package coverage

import "github.com/grailbio/covdepth/internal/provider"

// PosType is the coordinate type used throughout the engine. int32 matches
// the BAM/CRAM coordinate limit and the provider's own Pos fields.
type PosType = int32

// MaxDepth is the saturation ceiling for a single position's depth.
const MaxDepth = 1000

// OverlapMode selects the paired-end overlap clipping policy.
type OverlapMode int

const (
	// OverlapNone clips a paired read's end to its mate's start when the
	// same-contig mate starts inside the read (whichever read of the pair
	// that is), and drops the first-of-pair read entirely when both mates
	// share an identical alignment start.
	OverlapNone OverlapMode = iota
	// OverlapHalf is the legacy, asymmetric clipping policy: it only
	// clips the first-of-pair side, one base short of the mate's start,
	// and never special-cases equal starts.
	OverlapHalf
)

// ParseOverlapMode maps a CLI -om value to an OverlapMode.
func ParseOverlapMode(s string) (OverlapMode, bool) {
	switch s {
	case "none":
		return OverlapNone, true
	case "half":
		return OverlapHalf, true
	default:
		return 0, false
	}
}

func (m OverlapMode) String() string {
	switch m {
	case OverlapNone:
		return "none"
	case OverlapHalf:
		return "half"
	default:
		return "unknown"
	}
}

// Span is a single retained, clipped read's contribution to depth: a
// half-open reference interval, with an optional kmer-bucket index used by
// kmer-weighted depth (KmerIndex < 0 means "no kmer weighting").
type Span struct {
	Start     PosType
	End       PosType
	KmerIndex int32
}

// Contig is the immutable contig descriptor consumed by this package; it is
// the provider.Contig, renamed locally so that callers outside
// internal/provider don't need to import it just to name a contig.
type Contig = provider.Contig

// Filters are the Span Reader's configured record filters.
type Filters struct {
	MinMQ           int
	AllowDuplicates bool
	OverlapMode     OverlapMode
	// Weighted enables kmer-weighted depth; KmerFactors must be non-nil
	// when true (see coverage.KmerFactors).
	Weighted bool
}

// DefaultFilters matches the documented default minimum mapping quality.
func DefaultFilters() Filters {
	return Filters{MinMQ: 1, OverlapMode: OverlapNone}
}

// KmerFactors is the per-kmer-bucket multiplicative weight vector
// (coverage.Span.KmerIndex indexes into it), produced by internal/kmer and
// consumed only by the Depth Computer's weighted mode.
type KmerFactors []float64
