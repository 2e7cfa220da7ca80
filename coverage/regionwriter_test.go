package coverage

import (
	"strings"
	"testing"

	"github.com/grailbio/covdepth/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePerBaseSink struct {
	contigs []string
	pos     []PosType
	depths  []uint16
}

func (f *fakePerBaseSink) WriteBase(contig string, pos PosType, depth uint16) error {
	f.contigs = append(f.contigs, contig)
	f.pos = append(f.pos, pos)
	f.depths = append(f.depths, depth)
	return nil
}

type fakeDownsampleSink struct {
	pos   []PosType
	means []float64
}

func (f *fakeDownsampleSink) WriteMean(contig string, pos PosType, mean float64) error {
	f.pos = append(f.pos, pos)
	f.means = append(f.means, mean)
	return nil
}

type fakeGapSink struct {
	n int
}

func (f *fakeGapSink) Observe(contig string, pos PosType, depth uint16) error {
	f.n++
	return nil
}

func oneRegionSet(t *testing.T, chr string, start, end PosType) *region.Set {
	t.Helper()
	set, err := region.NewSetFromEntries([]region.Entry{{ChrName: chr, Start0: start, End: end}}, region.NewSetOpts{})
	require.NoError(t, err)
	return set
}

func TestRegionWriterPerBasePassesThroughEveryPosition(t *testing.T) {
	depth := []uint16{0, 0, 5, 5, 0}
	targets := oneRegionSet(t, "chr1", 0, 5)
	sink := &fakePerBaseSink{}
	w := NewRegionWriter(RegionWriterOpts{PerBase: sink})

	require.NoError(t, w.WriteContig("chr1", depth, targets, nil))

	assert.Equal(t, []PosType{0, 1, 2, 3, 4}, sink.pos)
	assert.Equal(t, []uint16{0, 0, 5, 5, 0}, sink.depths)
}

// Scenario 6: downsample factor 5 over depths 1..10 at positions 0..9 emits
// the window mean at the window's midpoint offset: (1+2)/2=1.5 at pos 2, and
// (6+7)/2=6.5 at pos 7.
func TestRegionWriterDownsampleEmitsAtMidpointOffset(t *testing.T) {
	depth := make([]uint16, 10)
	for i := range depth {
		depth[i] = uint16(i + 1)
	}
	targets := oneRegionSet(t, "chr1", 0, 10)
	sink := &fakeDownsampleSink{}
	w := NewRegionWriter(RegionWriterOpts{Downsample: sink, DownsampleFactor: 5})

	require.NoError(t, w.WriteContig("chr1", depth, targets, nil))

	assert.Equal(t, []PosType{2, 7}, sink.pos)
	assert.Equal(t, []float64{1.5, 6.5}, sink.means)
}

func TestRegionWriterDownsampleEmitsPartialTrailingWindow(t *testing.T) {
	// Region length 3 with factor 7: emission offset is 3, which the region
	// never reaches, so the trailing-window flush at the region's last
	// position carries whatever accumulated.
	depth := []uint16{10, 20, 30}
	targets := oneRegionSet(t, "chr1", 0, 3)
	sink := &fakeDownsampleSink{}
	w := NewRegionWriter(RegionWriterOpts{Downsample: sink, DownsampleFactor: 7})

	require.NoError(t, w.WriteContig("chr1", depth, targets, nil))

	require.Len(t, sink.pos, 1)
	assert.Equal(t, PosType(2), sink.pos[0])
	assert.InDelta(t, 20.0, sink.means[0], 1e-9)
}

func TestRegionWriterGlobalHistogramAccumulatesAcrossContigs(t *testing.T) {
	sink := &fakePerBaseSink{}
	w := NewRegionWriter(RegionWriterOpts{PerBase: sink})

	require.NoError(t, w.WriteContig("chr1", []uint16{1, 2, 3}, oneRegionSet(t, "chr1", 0, 3), nil))
	require.NoError(t, w.WriteContig("chr2", []uint16{4, 5}, oneRegionSet(t, "chr2", 0, 2), nil))

	assert.EqualValues(t, 5, w.Global.Count())
}

func TestRegionWriterPerRegionStats(t *testing.T) {
	depth := []uint16{1, 1, 9, 9}
	set, err := region.NewSetFromEntries([]region.Entry{
		{ChrName: "chr1", Start0: 0, End: 2, Extra: "low"},
		{ChrName: "chr1", Start0: 2, End: 4, Extra: "high"},
	}, region.NewSetOpts{})
	require.NoError(t, err)

	nameAt := func(pos PosType) string {
		if pos < 2 {
			return "low"
		}
		return "high"
	}
	w := NewRegionWriter(RegionWriterOpts{PerRegionStats: true})
	require.NoError(t, w.WriteContig("chr1", depth, set, nameAt))

	assert.ElementsMatch(t, []string{"low", "high"}, w.RegionNames())
	assert.EqualValues(t, 2, w.RegionHistogram("low").Count())
	assert.EqualValues(t, 2, w.RegionHistogram("high").Count())
}

func TestRegionWriterPanicsOnRegionHistogramWithoutOpt(t *testing.T) {
	w := NewRegionWriter(RegionWriterOpts{})
	assert.Panics(t, func() { w.RegionHistogram("x") })
}

func TestRegionWriterFeedsGapSinkEveryPosition(t *testing.T) {
	gsink := &fakeGapSink{}
	w := NewRegionWriter(RegionWriterOpts{Gap: gsink})
	require.NoError(t, w.WriteContig("chr1", []uint16{1, 2, 3, 4}, oneRegionSet(t, "chr1", 0, 4), nil))
	assert.Equal(t, 4, gsink.n)
}

func TestRegionWriterHandlesDepthShorterThanRegion(t *testing.T) {
	sink := &fakePerBaseSink{}
	w := NewRegionWriter(RegionWriterOpts{PerBase: sink})
	require.NoError(t, w.WriteContig("chr1", []uint16{7}, oneRegionSet(t, "chr1", 0, 3), nil))
	assert.Equal(t, []uint16{7, 0, 0}, sink.depths)
}

func TestRegionWriterSkipsGapsBetweenMultipleTargetRegions(t *testing.T) {
	in := strings.Join([]string{"chr1\t0\t2", "chr1\t5\t7"}, "\n") + "\n"
	targets, err := region.NewSet(strings.NewReader(in), region.NewSetOpts{})
	require.NoError(t, err)

	depth := make([]uint16, 7)
	for i := range depth {
		depth[i] = uint16(i + 1)
	}
	sink := &fakePerBaseSink{}
	w := NewRegionWriter(RegionWriterOpts{PerBase: sink})
	require.NoError(t, w.WriteContig("chr1", depth, targets, nil))

	assert.Equal(t, []PosType{0, 1, 5, 6}, sink.pos)
	assert.Equal(t, []uint16{1, 2, 6, 7}, sink.depths)
}
