// Package gapannotate implements the gap detector's two cooperating
// downstream stages: a gaptarget containment filter, and a minimal
// region-name annotator that augments a gap block with the name(s) of any
// overlapping annotation region, splitting the block at intersection
// boundaries. Full refgene-style annotation is out of scope; this package
// implements the interface and splitting behavior the Gap Detector expects
// of its downstream consumer, using internal/region's BED-style Set as a
// stand-in source of named regions. Grounded on the interval-query pattern
// in kortschak-ins/cmd/ins/main.go (github.com/biogo/store/interval.IntTree).
package gapannotate

import (
	"sort"

	"github.com/biogo/store/interval"

	"github.com/grailbio/covdepth/coverage/gap"
	"github.com/grailbio/covdepth/internal/region"
)

// AnnotatedBlock is a gap block plus the name(s) of every annotation region
// it overlaps (empty when no annotation set is configured, or the block
// overlaps nothing).
type AnnotatedBlock struct {
	gap.Block
	RegionNames []string
}

// AnnotatedSink is the terminal consumer of annotated (and possibly split)
// gap blocks, typically output.GapWriter.
type AnnotatedSink interface {
	EmitAnnotated(AnnotatedBlock) error
}

// gapInterval adapts a region.Entry to interval.IntInterface for
// interval.IntTree queries.
type gapInterval struct {
	id    uintptr
	entry region.Entry
}

func (g gapInterval) Overlap(b interval.IntRange) bool {
	return int(g.entry.Start0) < b.End && b.Start < int(g.entry.End)
}
func (g gapInterval) ID() uintptr { return g.id }
func (g gapInterval) Range() interval.IntRange {
	return interval.IntRange{Start: int(g.entry.Start0), End: int(g.entry.End)}
}

// regionIndex supports overlap queries against one region.Set, one
// interval.IntTree per contig (contigs are queried independently since gap
// blocks never cross them).
type regionIndex struct {
	trees map[string]*interval.IntTree
}

func newRegionIndex(set *region.Set) *regionIndex {
	idx := &regionIndex{trees: make(map[string]*interval.IntTree)}
	var id uintptr
	for _, e := range set.Entries() {
		tree, ok := idx.trees[e.ChrName]
		if !ok {
			tree = &interval.IntTree{}
			idx.trees[e.ChrName] = tree
		}
		_ = tree.Insert(gapInterval{id: id, entry: e}, true)
		id++
	}
	for _, tree := range idx.trees {
		tree.AdjustRanges()
	}
	return idx
}

func (idx *regionIndex) overlapping(contig string, start, end region.PosType) []region.Entry {
	tree, ok := idx.trees[contig]
	if !ok {
		return nil
	}
	hits := tree.Get(gapInterval{entry: region.Entry{ChrName: contig, Start0: start, End: end}})
	entries := make([]region.Entry, len(hits))
	for i, h := range hits {
		entries[i] = h.(gapInterval).entry
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Start0 < entries[j].Start0 })
	return entries
}

// TargetFilter forwards only blocks whose (chr, start, end) overlaps a
// configured gapTargets region set, dropping the rest (spec'd as a pure
// containment gate; it never splits a block itself).
type TargetFilter struct {
	targets    *regionIndex
	downstream gap.Sink
}

// NewTargetFilter builds a TargetFilter gating blocks against targets.
func NewTargetFilter(targets region.Set, downstream gap.Sink) *TargetFilter {
	return &TargetFilter{targets: newRegionIndex(&targets), downstream: downstream}
}

// Emit implements gap.Sink.
func (f *TargetFilter) Emit(b gap.Block) error {
	if len(f.targets.overlapping(b.Contig, b.Start, b.End+1)) == 0 {
		return nil
	}
	return f.downstream.Emit(b)
}

var _ gap.Sink = (*TargetFilter)(nil)

// Annotator is the region-name annotator: it looks up every annotation
// region overlapping an incoming block, splits the block at the
// intersection boundaries of each overlapping region, and forwards one
// AnnotatedBlock per piece (a block that overlaps no annotation region, or
// when no annotation set is configured, passes through whole and
// unannotated).
type Annotator struct {
	regions *regionIndex
	sink    AnnotatedSink
}

// NewAnnotator builds an Annotator; regions may be the zero region.Set
// (empty), in which case every block passes through unannotated.
func NewAnnotator(regions region.Set, sink AnnotatedSink) *Annotator {
	return &Annotator{regions: newRegionIndex(&regions), sink: sink}
}

// Emit implements gap.Sink.
func (a *Annotator) Emit(b gap.Block) error {
	overlaps := a.regions.overlapping(b.Contig, b.Start, b.End+1)
	if len(overlaps) == 0 {
		return a.sink.EmitAnnotated(AnnotatedBlock{Block: b})
	}

	// Split b at each overlapping region's boundaries, emitting one piece
	// per distinct sub-interval with the names of every region covering it.
	cuts := map[region.PosType]bool{b.Start: true, b.End + 1: true}
	for _, e := range overlaps {
		if e.Start0 > b.Start && e.Start0 <= b.End {
			cuts[e.Start0] = true
		}
		if e.End > b.Start && e.End <= b.End {
			cuts[e.End] = true
		}
	}
	positions := make([]region.PosType, 0, len(cuts))
	for p := range cuts {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	for i := 0; i+1 < len(positions); i++ {
		segStart, segEnd := positions[i], positions[i+1]-1
		if segStart > segEnd {
			continue
		}
		var names []string
		for _, e := range overlaps {
			if e.Start0 <= segStart && segEnd < e.End {
				names = append(names, e.Extra)
			}
		}
		lo := segStart - b.Start
		hi := segEnd - b.Start + 1
		piece := AnnotatedBlock{
			Block:       gap.Block{Contig: b.Contig, Start: segStart, End: segEnd, Samples: b.Samples[lo:hi]},
			RegionNames: names,
		}
		if err := a.sink.EmitAnnotated(piece); err != nil {
			return err
		}
	}
	return nil
}

var _ gap.Sink = (*Annotator)(nil)
