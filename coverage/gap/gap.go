// Package gap implements the Gap Detector: an online state machine that
// consumes (contig, position, depth) tuples in coordinate order and emits
// maximal closed intervals of sub-threshold depth, cooperating with a
// downstream annotator sink. It is grounded on the teacher's BagProcessor
// state-machine shape (markduplicates/mark_duplicates.go), adapted from a
// per-bag duplicate-grouping scan to a per-contig depth-threshold scan.
package gap

import "github.com/grailbio/covdepth/coverage"

// PosType matches coverage.PosType (both are aliases for int32).
type PosType = int32

// Block is a closed interval of contiguous positions whose depth was
// strictly below the configured threshold.
type Block struct {
	Contig  string
	Start   PosType // inclusive
	End     PosType // inclusive
	Samples []uint16
}

// Size returns the number of positions in the block.
func (b Block) Size() int { return int(b.End-b.Start) + 1 }

// Mean returns the arithmetic mean of the block's samples.
func (b Block) Mean() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		sum += float64(s)
	}
	return sum / float64(len(b.Samples))
}

// Median returns the median of the block's samples (lower of the two
// middle values on ties, matching coverage.Histogram's convention).
func (b Block) Median() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	sorted := append([]uint16(nil), b.Samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return float64(sorted[(len(sorted)-1)/2])
}

// Sink receives one closed gap block at a time, in contig/position order.
// Implemented by the annotator stage.
type Sink interface {
	Emit(Block) error
}

// Detector implements the per-contig {Idle, InGap} state machine.
type Detector struct {
	threshold uint16
	sink      Sink

	contig     string
	inGap      bool
	start      PosType
	lastPos    PosType
	haveLast   bool
	samples    []uint16
}

// New constructs a Detector that emits blocks whose depth is strictly below
// threshold to sink.
func New(threshold uint16, sink Sink) *Detector {
	return &Detector{threshold: threshold, sink: sink}
}

// Observe feeds one (contig, pos, depth) tuple into the state machine. It
// satisfies coverage.GapSink.
func (d *Detector) Observe(contig string, pos PosType, depth uint16) error {
	if d.contig != "" && contig != d.contig {
		if err := d.closeOpenBlock(); err != nil {
			return err
		}
		d.contig = ""
	}
	if d.contig == "" {
		d.contig = contig
	}

	if depth < d.threshold {
		switch {
		case !d.inGap:
			d.inGap = true
			d.start = pos
			d.samples = append(d.samples[:0], depth)
		case d.haveLast && pos == d.lastPos+1:
			d.samples = append(d.samples, depth)
		default:
			// Non-contiguous with the open block: close it at the last
			// observed position and start a fresh block here.
			if err := d.closeOpenBlock(); err != nil {
				return err
			}
			d.inGap = true
			d.start = pos
			d.samples = append(d.samples[:0], depth)
		}
	} else if d.inGap {
		if err := d.closeOpenBlock(); err != nil {
			return err
		}
	}

	d.lastPos = pos
	d.haveLast = true
	return nil
}

// closeOpenBlock emits the pending block (if any) ending at the last
// observed position, and returns to Idle.
func (d *Detector) closeOpenBlock() error {
	if !d.inGap {
		return nil
	}
	block := Block{Contig: d.contig, Start: d.start, End: d.lastPos, Samples: append([]uint16(nil), d.samples...)}
	d.inGap = false
	d.samples = d.samples[:0]
	if d.sink == nil {
		return nil
	}
	return d.sink.Emit(block)
}

// Finalize closes any block left open at end-of-stream.
func (d *Detector) Finalize() error {
	return d.closeOpenBlock()
}

var _ coverage.GapSink = (*Detector)(nil)
