package gapannotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/covdepth/coverage/gap"
	"github.com/grailbio/covdepth/internal/region"
)

type fakeAnnotatedSink struct {
	blocks []AnnotatedBlock
}

func (f *fakeAnnotatedSink) EmitAnnotated(b AnnotatedBlock) error {
	f.blocks = append(f.blocks, b)
	return nil
}

func mustSet(t *testing.T, entries []region.Entry) region.Set {
	t.Helper()
	set, err := region.NewSetFromEntries(entries, region.NewSetOpts{})
	require.NoError(t, err)
	return set
}

func TestTargetFilterDropsNonOverlappingBlocks(t *testing.T) {
	targets := mustSet(t, []region.Entry{{ChrName: "c1", Start0: 100, End: 200}})
	sink := &fakeAnnotatedSink{}
	annotator := NewAnnotator(region.Set{}, sink)
	filter := NewTargetFilter(targets, annotator)

	require.NoError(t, filter.Emit(gap.Block{Contig: "c1", Start: 0, End: 5, Samples: []uint16{1, 1, 1, 1, 1, 1}}))
	assert.Empty(t, sink.blocks)

	require.NoError(t, filter.Emit(gap.Block{Contig: "c1", Start: 150, End: 160, Samples: make([]uint16, 11)}))
	require.Len(t, sink.blocks, 1)
}

func TestAnnotatorPassesThroughWhenNoRegionsConfigured(t *testing.T) {
	sink := &fakeAnnotatedSink{}
	annotator := NewAnnotator(region.Set{}, sink)

	block := gap.Block{Contig: "c1", Start: 10, End: 20, Samples: make([]uint16, 11)}
	require.NoError(t, annotator.Emit(block))

	require.Len(t, sink.blocks, 1)
	assert.Equal(t, block, sink.blocks[0].Block)
	assert.Empty(t, sink.blocks[0].RegionNames)
}

// Block [8,18] against two overlapping annotation regions, geneA [10,15)
// and geneB [13,20): splits into [8,9] (unannotated), [10,12] (geneA),
// [13,14] (geneA+geneB), [15,18] (geneB).
func TestAnnotatorSplitsAtIntersectionBoundaries(t *testing.T) {
	regions := mustSet(t, []region.Entry{
		{ChrName: "c1", Start0: 10, End: 15, Extra: "geneA"},
		{ChrName: "c1", Start0: 13, End: 20, Extra: "geneB"},
	})
	sink := &fakeAnnotatedSink{}
	annotator := NewAnnotator(regions, sink)

	samples := make([]uint16, 11) // covers positions 8..18
	for i := range samples {
		samples[i] = uint16(i)
	}
	block := gap.Block{Contig: "c1", Start: 8, End: 18, Samples: samples}
	require.NoError(t, annotator.Emit(block))

	require.Len(t, sink.blocks, 4)

	want := []struct {
		start, end int32
		names      []string
	}{
		{8, 9, nil},
		{10, 12, []string{"geneA"}},
		{13, 14, []string{"geneA", "geneB"}},
		{15, 18, []string{"geneB"}},
	}
	for i, w := range want {
		got := sink.blocks[i]
		assert.Equal(t, w.start, got.Start, "piece %d start", i)
		assert.Equal(t, w.end, got.End, "piece %d end", i)
		assert.ElementsMatch(t, w.names, got.RegionNames, "piece %d names", i)
		assert.Equal(t, int(w.end-w.start)+1, len(got.Samples), "piece %d sample count", i)
	}
}

func TestAnnotatorBlockOverlappingNoRegionPassesThroughWhole(t *testing.T) {
	regions := mustSet(t, []region.Entry{{ChrName: "c1", Start0: 100, End: 200, Extra: "geneA"}})
	sink := &fakeAnnotatedSink{}
	annotator := NewAnnotator(regions, sink)

	block := gap.Block{Contig: "c1", Start: 0, End: 5, Samples: make([]uint16, 6)}
	require.NoError(t, annotator.Emit(block))

	require.Len(t, sink.blocks, 1)
	assert.Equal(t, block, sink.blocks[0].Block)
	assert.Empty(t, sink.blocks[0].RegionNames)
}
