package gap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	blocks []Block
}

func (f *fakeSink) Emit(b Block) error {
	f.blocks = append(f.blocks, b)
	return nil
}

// Scenario 4: depth sequence [5,5,1,1,1,5,5,2,2,5,5] at positions 10..20,
// threshold 3, expects blocks (12,14) and (17,18).
func TestDetectorEmitsMaximalSubThresholdBlocks(t *testing.T) {
	depths := []uint16{5, 5, 1, 1, 1, 5, 5, 2, 2, 5, 5}
	sink := &fakeSink{}
	d := New(3, sink)
	for i, depth := range depths {
		require.NoError(t, d.Observe("c1", PosType(10+i), depth))
	}
	require.NoError(t, d.Finalize())

	require.Len(t, sink.blocks, 2)
	assert.Equal(t, Block{Contig: "c1", Start: 12, End: 14, Samples: []uint16{1, 1, 1}}, sink.blocks[0])
	assert.Equal(t, Block{Contig: "c1", Start: 17, End: 18, Samples: []uint16{2, 2}}, sink.blocks[1])
}

func TestDetectorClosesOpenBlockAtContigChange(t *testing.T) {
	sink := &fakeSink{}
	d := New(5, sink)
	require.NoError(t, d.Observe("c1", 10, 1))
	require.NoError(t, d.Observe("c1", 11, 1))
	require.NoError(t, d.Observe("c2", 0, 1)) // contig change while in a gap
	require.NoError(t, d.Finalize())

	require.Len(t, sink.blocks, 2)
	assert.Equal(t, Block{Contig: "c1", Start: 10, End: 11, Samples: []uint16{1, 1}}, sink.blocks[0])
	assert.Equal(t, Block{Contig: "c2", Start: 0, End: 0, Samples: []uint16{1}}, sink.blocks[1])
}

func TestDetectorClosesNonContiguousRun(t *testing.T) {
	sink := &fakeSink{}
	d := New(5, sink)
	require.NoError(t, d.Observe("c1", 10, 1))
	require.NoError(t, d.Observe("c1", 11, 1))
	require.NoError(t, d.Observe("c1", 20, 1)) // skipped positions: closes, starts fresh
	require.NoError(t, d.Finalize())

	require.Len(t, sink.blocks, 2)
	assert.Equal(t, PosType(10), sink.blocks[0].Start)
	assert.Equal(t, PosType(11), sink.blocks[0].End)
	assert.Equal(t, PosType(20), sink.blocks[1].Start)
	assert.Equal(t, PosType(20), sink.blocks[1].End)
}

func TestDetectorFinalizesOpenBlockAtEndOfStream(t *testing.T) {
	sink := &fakeSink{}
	d := New(5, sink)
	require.NoError(t, d.Observe("c1", 10, 1))
	require.Empty(t, sink.blocks)
	require.NoError(t, d.Finalize())
	require.Len(t, sink.blocks, 1)
	assert.Equal(t, PosType(10), sink.blocks[0].Start)
	assert.Equal(t, PosType(10), sink.blocks[0].End)
}

func TestDetectorNoBlockWhenNeverBelowThreshold(t *testing.T) {
	sink := &fakeSink{}
	d := New(3, sink)
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Observe("c1", PosType(i), 5))
	}
	require.NoError(t, d.Finalize())
	assert.Empty(t, sink.blocks)
}

func TestBlockMeanAndMedian(t *testing.T) {
	b := Block{Start: 0, End: 3, Samples: []uint16{1, 2, 3, 4}}
	assert.Equal(t, 2.5, b.Mean())
	assert.Equal(t, float64(2), b.Median())
	assert.Equal(t, 4, b.Size())
}
