package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grailbio/covdepth/coverage"
	"github.com/grailbio/covdepth/internal/region"
)

func validOpts() Opts {
	return Opts{
		BamPath:     "sample.bam",
		TargetsPath: "targets.bed",
	}
}

func TestValidateRequiresTargets(t *testing.T) {
	o := validOpts()
	o.TargetsPath = ""
	err := o.Validate()
	assert.Error(t, err)
	assert.Equal(t, coverage.UsageError, coverage.KindOf(err))
}

func TestValidateRequiresReferenceForCRAM(t *testing.T) {
	o := validOpts()
	o.BamPath = "sample.cram"
	err := o.Validate()
	assert.Error(t, err)

	o.ReferencePath = "ref.fa"
	assert.NoError(t, o.Validate())
}

func TestValidateRequiresRefgeneWithGaps(t *testing.T) {
	o := validOpts()
	o.GapsOut = "gaps.csv"
	err := o.Validate()
	assert.Error(t, err)

	o.RefgenePath = "refgene.bed"
	assert.NoError(t, o.Validate())
}

func TestValidateRequiresPositiveDownsampleFactor(t *testing.T) {
	o := validOpts()
	o.DownsampleOut = "ds.tsv"
	err := o.Validate()
	assert.Error(t, err)

	o.DownsampleFactor = 5
	assert.NoError(t, o.Validate())
}

func TestValidateAcceptsMinimalOpts(t *testing.T) {
	assert.NoError(t, validOpts().Validate())
}

func TestRegionNameIndexFallsBackToChrNameWhenNoExtra(t *testing.T) {
	idx := newRegionNameIndex([]region.Entry{{ChrName: "chr1", Start0: 0, End: 10}})
	assert.Equal(t, "chr1", idx.nameAt("chr1", 5))
}

func TestRegionNameIndexUsesExtraColumnWhenPresent(t *testing.T) {
	idx := newRegionNameIndex([]region.Entry{{ChrName: "chr1", Start0: 0, End: 10, Extra: "exon1"}})
	assert.Equal(t, "exon1", idx.nameAt("chr1", 5))
}

func TestRegionNameIndexEmptyOutsideAnyRegion(t *testing.T) {
	idx := newRegionNameIndex([]region.Entry{{ChrName: "chr1", Start0: 0, End: 10, Extra: "exon1"}})
	assert.Equal(t, "", idx.nameAt("chr1", 20))
}
