package coverage

import "github.com/grailbio/covdepth/internal/provider"

// initialSpanCapacity is the starting capacity for a contig's span slice;
// append()'s doubling takes over from there. Correctness is unaffected by
// this choice, only the number of reallocations on a large contig.
const initialSpanCapacity = 1 << 16 // ~64K spans

// KmerIndexFunc derives a span's kmer-weighting bucket from its source
// alignment record. Span Reader calls it once per retained record when
// Filters.Weighted is set; a nil KmerIndexFunc with Weighted set always
// yields unweighted (index -1) spans.
type KmerIndexFunc func(rec provider.Record) int32

// ReadContig drains prov's iterator for contigName, applies the configured
// filters and paired-end overlap clipping, and returns the retained spans
// in non-decreasing Start order. contigIndex is the provider's
// reference index for contigName, needed to recognize same-contig mates.
func ReadContig(prov *provider.Provider, contigName string, contigIndex int, filters Filters, kmerIndexFn KmerIndexFunc) ([]Span, error) {
	header, err := prov.GetHeader()
	if err != nil {
		return nil, Wrap(ProviderFailure, err, "reading alignment header")
	}
	if _, ok := header.ContigByName(contigName); !ok {
		return nil, Errorf(InputMismatch, "contig %q absent from alignment header", contigName)
	}

	it, err := prov.NewIterator(contigName)
	if err != nil {
		return nil, Wrap(InputMismatch, err, "opening iterator for contig %q", contigName)
	}
	defer it.Close()

	spans := make([]Span, 0, initialSpanCapacity)

	for it.Scan() {
		rec := it.Record()
		if rec.Unmapped() {
			continue
		}
		if rec.SecondaryOrSupplementary() {
			continue
		}
		if rec.MappingQuality() < filters.MinMQ {
			continue
		}
		if rec.Duplicate() && !filters.AllowDuplicates {
			continue
		}

		start := PosType(rec.AlignmentStart())
		end := PosType(rec.AlignmentEnd())

		if rec.ReadPaired() {
			mateStart := PosType(rec.MateAlignmentStart())
			sameContigMate := rec.MateReferenceIndex() == contigIndex && !rec.MateUnmapped()
			switch filters.OverlapMode {
			case OverlapNone:
				if rec.FirstOfPair() && mateStart == start {
					continue
				}
				if sameContigMate && start < mateStart && mateStart <= end {
					end = mateStart
				}
			case OverlapHalf:
				if rec.FirstOfPair() && sameContigMate && start <= mateStart && mateStart <= end {
					end = mateStart - 1
				}
			}
		}

		if end <= start {
			continue
		}

		kmerIndex := int32(-1)
		if filters.Weighted && kmerIndexFn != nil {
			kmerIndex = kmerIndexFn(rec)
		}

		spans = append(spans, Span{Start: start, End: end, KmerIndex: kmerIndex})
	}
	if err := it.Err(); err != nil {
		return nil, Wrap(ProviderFailure, err, "iterating contig %q", contigName)
	}
	return spans, nil
}
