// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"

	"github.com/grailbio/covdepth/coverage"
	"github.com/grailbio/covdepth/coverage/gap"
	"github.com/grailbio/covdepth/gapannotate"
	"github.com/grailbio/covdepth/internal/kmer"
	"github.com/grailbio/covdepth/internal/provider"
	"github.com/grailbio/covdepth/internal/region"
	"github.com/grailbio/covdepth/output"
)

// Opts is the fully resolved, validated set of run parameters assembled from
// CLI flags.
type Opts struct {
	BamPath       string
	IndexPath     string
	ReferencePath string
	TargetsPath   string
	SampleName    string

	PerBaseOut       string
	DownsampleOut    string
	DownsampleFactor int

	MinMQ           int
	AllowDuplicates bool
	OverlapMode     coverage.OverlapMode

	SampleSummaryOut   string
	CoverageJSOut      string
	IntervalSummaryOut string

	GapsOut       string
	GapThreshold  int
	GapTargetPath string
	RefgenePath   string

	KmerPath       string
	KmerFactorsOut string
}

// Validate checks the flag combinations that the CLI boundary is required to
// reject before any I/O is attempted.
func (o Opts) Validate() error {
	if o.TargetsPath == "" {
		return coverage.Errorf(coverage.UsageError, "-L is required")
	}
	if strings.HasSuffix(strings.ToLower(o.BamPath), ".cram") && o.ReferencePath == "" {
		return coverage.Errorf(coverage.UsageError, "-reference is required for CRAM input")
	}
	if o.GapsOut != "" && o.RefgenePath == "" {
		return coverage.Errorf(coverage.UsageError, "-refgene is required when -gaps is set")
	}
	if o.DownsampleOut != "" && o.DownsampleFactor <= 0 {
		return coverage.Errorf(coverage.UsageError, "-df must be positive when -do is set")
	}
	return nil
}

// regionNameIndex looks up the target-region name (the BED "extra" column)
// that owns a given (contig, pos), for per-region statistics and the
// interval summary.
type regionNameIndex struct {
	byContig map[string][]region.Entry
}

func newRegionNameIndex(entries []region.Entry) *regionNameIndex {
	idx := &regionNameIndex{byContig: make(map[string][]region.Entry)}
	for _, e := range entries {
		idx.byContig[e.ChrName] = append(idx.byContig[e.ChrName], e)
	}
	return idx
}

func (idx *regionNameIndex) nameAt(contig string, pos region.PosType) string {
	entries := idx.byContig[contig]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].End > pos })
	if i < len(entries) && entries[i].Start0 <= pos {
		if entries[i].Extra != "" {
			return entries[i].Extra
		}
		return entries[i].ChrName
	}
	return ""
}

// Run executes one end-to-end covdepth invocation: it opens the alignment,
// loads the target and (optional) gap-target/annotation region sets and
// kmer profile, drives the coverage pipeline (twice, when both per-base and
// downsampled output are requested, since one RegionWriter pass emits
// exactly one of the two), and writes every requested summary output.
func Run(ctx context.Context, opts Opts) error {
	prov := provider.NewProvider(opts.BamPath, opts.IndexPath, opts.ReferencePath)
	header, err := prov.GetHeader()
	if err != nil {
		return coverage.Wrap(coverage.ProviderFailure, err, "reading alignment header")
	}

	targets, err := region.NewSetFromPath(opts.TargetsPath, region.NewSetOpts{SAMHeader: header.SAMHeader()})
	if err != nil {
		return coverage.Wrap(coverage.InputMismatch, err, "loading targets %q", opts.TargetsPath)
	}
	if targets.Empty() {
		return coverage.Errorf(coverage.InputMismatch, "target set %q contains no regions", opts.TargetsPath)
	}

	filters := coverage.Filters{
		MinMQ:           opts.MinMQ,
		AllowDuplicates: opts.AllowDuplicates,
		OverlapMode:     opts.OverlapMode,
	}

	var kmerFactors coverage.KmerFactors
	var kmerIndexFn coverage.KmerIndexFunc
	if opts.KmerPath != "" {
		profile, err := kmer.LoadFromPath(opts.KmerPath)
		if err != nil {
			return coverage.Wrap(coverage.InputMismatch, err, "loading kmer profile %q", opts.KmerPath)
		}
		factors, err := profile.SampleFactors(opts.SampleName)
		if err != nil {
			return coverage.Wrap(coverage.InputMismatch, err, "resolving kmer factors for sample %q", opts.SampleName)
		}
		kmerFactors = factors
		filters.Weighted = true
		order, ok := kmer.Order(profile.NumKmers())
		if !ok {
			return coverage.Errorf(coverage.InputMismatch, "kmer profile %q has %d columns, not a power of four; cannot derive a per-read kmer bucket", opts.KmerPath, profile.NumKmers())
		}
		kmerIndexFn = func(rec provider.Record) int32 {
			idx, ok := kmer.Index(rec.LeadingBases(order), order)
			if !ok {
				return -1
			}
			return idx
		}
		if opts.KmerFactorsOut != "" {
			if err := writeKmerFactors(opts.KmerFactorsOut, factors); err != nil {
				return err
			}
		}
	}

	nameIdx := newRegionNameIndex(targets.Entries())
	regionNameAt := func(contig string, pos coverage.PosType) string { return nameIdx.nameAt(contig, pos) }
	perRegionStats := opts.IntervalSummaryOut != ""

	var gapSink gap.Sink
	var gapCloser func() error
	if opts.GapsOut != "" {
		refgeneSet, err := region.NewSetFromPath(opts.RefgenePath, region.NewSetOpts{})
		if err != nil {
			return coverage.Wrap(coverage.InputMismatch, err, "loading annotation regions %q", opts.RefgenePath)
		}
		gapWriterFile, err := output.Create(opts.GapsOut)
		if err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "creating gap output %q", opts.GapsOut)
		}
		gapWriter := output.NewGapWriter(gapWriterFile)
		annotator := gapannotate.NewAnnotator(refgeneSet, gapWriter)
		var sink gap.Sink = annotator
		if opts.GapTargetPath != "" {
			gapTargetSet, err := region.NewSetFromPath(opts.GapTargetPath, region.NewSetOpts{})
			if err != nil {
				gapWriterFile.Close()
				return coverage.Wrap(coverage.InputMismatch, err, "loading gap targets %q", opts.GapTargetPath)
			}
			sink = gapannotate.NewTargetFilter(gapTargetSet, annotator)
		}
		gapSink = sink
		gapCloser = gapWriterFile.Close
	}

	var primaryWriter *coverage.RegionWriter
	var perBaseCloser, downsampleCloser func() error

	// Pass 1: per-base output (if requested), or downsampled output alone
	// when per-base wasn't requested. Carries stats and the gap detector.
	needsPass1 := opts.PerBaseOut != "" || (opts.DownsampleOut != "" && opts.PerBaseOut == "")
	pass1IsDownsample := opts.PerBaseOut == "" && opts.DownsampleOut != ""

	var detector *gap.Detector
	if gapSink != nil {
		detector = gap.New(uint16(opts.GapThreshold), gapSink)
	}

	if needsPass1 {
		writerOpts := coverage.RegionWriterOpts{PerRegionStats: perRegionStats}
		if pass1IsDownsample {
			writerOpts.DownsampleFactor = opts.DownsampleFactor
			ds, closer, err := openDownsampleSink(opts.DownsampleOut)
			if err != nil {
				return err
			}
			writerOpts.Downsample = ds
			downsampleCloser = closer
		} else if opts.PerBaseOut != "" {
			pb, closer, err := openPerBaseSink(opts.PerBaseOut)
			if err != nil {
				return err
			}
			writerOpts.PerBase = pb
			perBaseCloser = closer
		}
		if detector != nil {
			writerOpts.Gap = detector
		}
		primaryWriter = coverage.NewRegionWriter(writerOpts)
		if err := runPass(prov, &targets, filters, kmerIndexFn, kmerFactors, primaryWriter, regionNameAt); err != nil {
			return err
		}
		if detector != nil {
			if err := detector.Finalize(); err != nil {
				return coverage.Wrap(coverage.ProviderFailure, err, "finalizing gap detector")
			}
		}
	}

	// Pass 2: the other output, when both per-base and downsampled output
	// were requested. No stats, no gap feed: those were already captured in
	// pass 1.
	if opts.PerBaseOut != "" && opts.DownsampleOut != "" {
		ds, closer, err := openDownsampleSink(opts.DownsampleOut)
		if err != nil {
			return err
		}
		downsampleCloser = closer
		secondWriter := coverage.NewRegionWriter(coverage.RegionWriterOpts{
			DownsampleFactor: opts.DownsampleFactor,
			Downsample:       ds,
		})
		if err := runPass(prov, &targets, filters, kmerIndexFn, kmerFactors, secondWriter, nil); err != nil {
			return err
		}
	}

	if perBaseCloser != nil {
		if err := perBaseCloser(); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "closing per-base output")
		}
	}
	if downsampleCloser != nil {
		if err := downsampleCloser(); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "closing downsampled output")
		}
	}
	if gapCloser != nil {
		if err := gapCloser(); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "closing gap output")
		}
	}

	if primaryWriter == nil {
		// No per-base or downsampled output requested: still need a pass to
		// populate statistics for the summary outputs below.
		primaryWriter = coverage.NewRegionWriter(coverage.RegionWriterOpts{PerRegionStats: perRegionStats, Gap: detector})
		if err := runPass(prov, &targets, filters, kmerIndexFn, kmerFactors, primaryWriter, regionNameAt); err != nil {
			return err
		}
		if detector != nil {
			if err := detector.Finalize(); err != nil {
				return coverage.Wrap(coverage.ProviderFailure, err, "finalizing gap detector")
			}
		}
	}

	if err := writeSummaries(opts, primaryWriter); err != nil {
		return err
	}
	log.Printf("covdepth: processed %d base(s) of target for sample %q", primaryWriter.Global.Count(), opts.SampleName)
	return nil
}

func runPass(prov *provider.Provider, targets *region.Set, filters coverage.Filters, kmerIndexFn coverage.KmerIndexFunc, kmerFactors coverage.KmerFactors, writer *coverage.RegionWriter, regionNameAt func(string, coverage.PosType) string) error {
	walkTargets := targets.Clone()
	return coverage.Run(coverage.RunOpts{
		Provider:     prov,
		Targets:      &walkTargets,
		Filters:      filters,
		KmerIndexFn:  kmerIndexFn,
		KmerFactors:  kmerFactors,
		Writer:       writer,
		RegionNameAt: regionNameAt,
	})
}

func openPerBaseSink(path string) (*output.PerBaseWriter, func() error, error) {
	f, err := output.Create(path)
	if err != nil {
		return nil, nil, coverage.Wrap(coverage.ProviderFailure, err, "creating per-base output %q", path)
	}
	w := output.NewPerBaseWriter(f)
	return w, func() error {
		if err := w.Flush(); err != nil {
			return err
		}
		return f.Close()
	}, nil
}

func openDownsampleSink(path string) (*output.DownsampleWriter, func() error, error) {
	f, err := output.Create(path)
	if err != nil {
		return nil, nil, coverage.Wrap(coverage.ProviderFailure, err, "creating downsampled output %q", path)
	}
	w := output.NewDownsampleWriter(f)
	return w, func() error {
		if err := w.Flush(); err != nil {
			return err
		}
		return f.Close()
	}, nil
}

func writeKmerFactors(path string, factors []float64) error {
	f, err := output.Create(path)
	if err != nil {
		return coverage.Wrap(coverage.ProviderFailure, err, "creating kmer factor dump %q", path)
	}
	defer f.Close()
	for i, v := range factors {
		if _, err := io.WriteString(f, strconv.Itoa(i)+"\t"+strconv.FormatFloat(v, 'g', -1, 64)+"\n"); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "writing kmer factor dump")
		}
	}
	return nil
}

// writeSummaries writes the sample summary, coverage JS, and interval
// summary outputs, each only when its output path was configured.
func writeSummaries(opts Opts, w *coverage.RegionWriter) error {
	if opts.SampleSummaryOut != "" {
		f, err := output.Create(opts.SampleSummaryOut)
		if err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "creating sample summary %q", opts.SampleSummaryOut)
		}
		defer f.Close()
		fractionAbove := func(k int) float64 { return w.Global.FractionAbove(k) }
		if err := output.WriteSampleSummary(f, w.Global.Median(), w.Global.Mean(), fractionAbove); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "writing sample summary")
		}
	}

	if opts.CoverageJSOut != "" {
		f, err := output.Create(opts.CoverageJSOut)
		if err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "creating coverage JS %q", opts.CoverageJSOut)
		}
		defer f.Close()
		means := map[string]float64{opts.SampleName: w.Global.Mean()}
		medians := map[string]float64{opts.SampleName: w.Global.Median()}
		if err := output.WriteCoverageJS(f, means, medians); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "writing coverage JS")
		}
	}

	if opts.IntervalSummaryOut != "" {
		f, err := output.Create(opts.IntervalSummaryOut)
		if err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "creating interval summary %q", opts.IntervalSummaryOut)
		}
		defer f.Close()
		names := w.RegionNames()
		means := make([]float64, len(names))
		for i, name := range names {
			means[i] = w.RegionHistogram(name).Mean()
		}
		if err := output.WriteIntervalSummary(f, opts.SampleName, names, means); err != nil {
			return coverage.Wrap(coverage.ProviderFailure, err, "writing interval summary")
		}
	}
	return nil
}
